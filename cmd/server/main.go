package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/matst80/unirelay/internal/admin"
	"github.com/matst80/unirelay/internal/keepalive"
	"github.com/matst80/unirelay/internal/obs"
	"github.com/matst80/unirelay/internal/ratelimit"
	"github.com/matst80/unirelay/internal/relay"
	"github.com/matst80/unirelay/internal/state"
)

const version = "2.0.0"

func main() {
	pflag.Parse()
	obs.EnableDebug(cfg.Debug)
	defer obs.Sync()

	addr := net.JoinHostPort("", strconv.Itoa(cfg.Port))
	obs.Info("server.start", obs.Fields{"addr": addr, "path": cfg.Path, "version": version})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := state.New(state.Options{
		RedisAddr:     cfg.RedisAddr,
		RedisPassword: cfg.RedisPassword,
		RedisDB:       cfg.RedisDB,
		EntryTTL:      3 * cfg.HeartbeatEvery,
	})
	if err != nil {
		obs.Error("state.init", obs.Fields{"err": err.Error()})
		os.Exit(1)
	}
	defer store.Close()

	limiter := ratelimit.New(cfg.UpgradeRate, cfg.RequestRate, cfg.RateBurst)
	hub, err := relay.NewHub(ctx, store, cfg.UUID, limiter)
	if err != nil {
		obs.Error("hub.init", obs.Fields{"err": err.Error()})
		os.Exit(1)
	}
	obs.Info("server.identifier", obs.Fields{"uuid": hub.Identifier()})

	dialer, err := relay.NewDialer(cfg.OutboundProxy, cfg.DialTimeout)
	if err != nil {
		obs.Error("dialer.init", obs.Fields{"err": err.Error()})
		os.Exit(1)
	}
	eng := &relay.Engine{
		Upstream: relay.NewUpstream(relay.UpstreamOptions{
			Timeout:          cfg.UpstreamTimeout,
			MaxResponseBytes: cfg.MaxResponseBytes,
			DefaultHost:      cfg.DefaultHost,
			Identity:         relay.Identity,
			Dialer:           dialer,
		}),
		Tunnels:      relay.NewTunnelManager(dialer),
		Limiter:      limiter,
		PingInterval: cfg.PingInterval,
		MaxPending:   cfg.MaxPending,
		WriteTimeout: cfg.WriteTimeout,
	}

	// sessions outlive the signal context so the hub can send going-away frames first
	sessCtx, cancelSessions := context.WithCancel(context.Background())
	defer cancelSessions()

	var ready atomic.Bool
	router := admin.NewRouter(admin.Options{
		Path:        cfg.Path,
		Version:     version,
		CarrierHost: relay.CarrierHost,
		State:       hub,
		Ready:       ready.Load,
	}, relay.NewHandler(sessCtx, hub, eng))

	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	maintained := make(chan struct{})
	go func() {
		hub.Maintain(ctx, cfg.HeartbeatEvery)
		close(maintained)
	}()

	platform := keepalive.Detect(os.Getenv)
	if platform != keepalive.None {
		obs.Info("keepalive.platform", obs.Fields{"platform": string(platform)})
	}
	go keepalive.NewPinger(keepalive.PublicHost(platform, os.Getenv), cfg.KeepaliveEvery, hub).Run(ctx)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			obs.Error("server.listen", obs.Fields{"err": err.Error(), "addr": addr})
			stop()
		}
	}()

	ready.Store(true)
	obs.Info("server.ready", obs.Fields{})

	<-ctx.Done()
	obs.Info("server.shutdown.signal", obs.Fields{})
	ready.Store(false)
	hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		obs.Error("server.shutdown", obs.Fields{"err": err.Error()})
	}
	cancelSessions()
	<-maintained
	obs.Info("server.shutdown.complete", obs.Fields{})
}
