package main

import (
	"os"
	"strconv"
	"time"

	"github.com/spf13/pflag"
)

// Config holds all runtime configuration derived from flags. Flag defaults come from the
// environment so platform deployments need no command line.
type Config struct {
	Port             int
	UUID             string
	Path             string
	DefaultHost      string
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	Debug            bool
	PingInterval     time.Duration
	UpstreamTimeout  time.Duration
	DialTimeout      time.Duration
	WriteTimeout     time.Duration
	MaxPending       int
	MaxResponseBytes int64
	OutboundProxy    string
	KeepaliveEvery   time.Duration
	HeartbeatEvery   time.Duration
	UpgradeRate      int
	RequestRate      int
	RateBurst        int
	ShutdownTimeout  time.Duration
}

var cfg Config

func init() {
	pflag.IntVar(&cfg.Port, "port", envInt("PORT", 3000), "listen port")
	pflag.StringVar(&cfg.UUID, "uuid", os.Getenv("SERVER_UUID"), "relay identifier; generated (or shared through redis) when empty")
	pflag.StringVar(&cfg.Path, "path", envString("WS_PATH", "/unicom"), "stream upgrade path")
	pflag.StringVar(&cfg.DefaultHost, "default-host", envString("DEFAULT_HOST", "wo.10010.com"), "upstream host when a request names none")
	pflag.StringVar(&cfg.RedisAddr, "redis-addr", os.Getenv("REDIS_ADDR"), "redis address for shared state; in-memory when empty")
	pflag.StringVar(&cfg.RedisPassword, "redis-password", os.Getenv("REDIS_PASSWORD"), "redis password")
	pflag.IntVar(&cfg.RedisDB, "redis-db", envInt("REDIS_DB", 0), "redis database")
	pflag.BoolVar(&cfg.Debug, "debug", os.Getenv("DEBUG") != "", "enable debug logs")
	pflag.DurationVar(&cfg.PingInterval, "ping-interval", envDuration("PING_INTERVAL", 30*time.Second), "stream liveness probe interval; 0 disables")
	pflag.DurationVar(&cfg.UpstreamTimeout, "upstream-timeout", envDuration("UPSTREAM_TIMEOUT", 30*time.Second), "timeout for one relayed request")
	pflag.DurationVar(&cfg.DialTimeout, "dial-timeout", envDuration("DIAL_TIMEOUT", 10*time.Second), "timeout for outbound connects")
	pflag.DurationVar(&cfg.WriteTimeout, "write-timeout", envDuration("WRITE_TIMEOUT", 10*time.Second), "deadline for control frames")
	pflag.IntVar(&cfg.MaxPending, "max-pending", envInt("MAX_PENDING", 64), "messages queued while the handshake is in flight")
	pflag.Int64Var(&cfg.MaxResponseBytes, "max-response-bytes", int64(envInt("MAX_RESPONSE_BYTES", 8<<20)), "cap on a buffered upstream response body")
	pflag.StringVar(&cfg.OutboundProxy, "outbound-proxy", os.Getenv("OUTBOUND_PROXY"), "socks5:// proxy for outbound connections")
	pflag.DurationVar(&cfg.KeepaliveEvery, "keepalive-interval", envDuration("KEEPALIVE_INTERVAL", 4*time.Minute), "self ping interval on hosting platforms; 0 disables")
	pflag.DurationVar(&cfg.HeartbeatEvery, "heartbeat-interval", envDuration("HEARTBEAT_INTERVAL", 30*time.Second), "connection count publish interval")
	pflag.IntVar(&cfg.UpgradeRate, "upgrade-rate", envInt("UPGRADE_RATE", 0), "stream upgrades per second per client ip; 0 disables")
	pflag.IntVar(&cfg.RequestRate, "request-rate", envInt("REQUEST_RATE", 0), "relayed requests per second per client ip; 0 disables")
	pflag.IntVar(&cfg.RateBurst, "rate-burst", envInt("RATE_BURST", 20), "token bucket capacity for both limits")
	pflag.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", 10*time.Second, "grace period for in-flight http requests")
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return def
}
