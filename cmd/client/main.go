package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/pflag"

	"github.com/matst80/unirelay/internal/httpx"
	"github.com/matst80/unirelay/internal/obs"
	"github.com/matst80/unirelay/internal/relay"
)

func main() {
	pflag.Parse()
	obs.EnableDebug(cfg.Debug)
	defer obs.Sync()

	if err := run(); err != nil {
		obs.Error("client.failed", obs.Fields{"err": err.Error()})
		os.Exit(1)
	}
}

func run() error {
	c, resp, err := websocket.DefaultDialer.Dial(cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", cfg.URL, err)
	}
	resp.Body.Close()
	defer c.Close()

	if err := c.WriteMessage(websocket.BinaryMessage, []byte(cfg.Handshake)); err != nil {
		return err
	}
	ack, err := read(c)
	if err != nil {
		return fmt.Errorf("handshake: %w", err)
	}
	if !bytes.Equal(ack, relay.HandshakeAck) {
		return fmt.Errorf("unexpected handshake reply % x", ack)
	}
	obs.Debug("client.handshake", obs.Fields{"url": cfg.URL})

	switch {
	case cfg.Connect != "":
		return tunnel(c, cfg.Connect)
	case cfg.Get != "":
		return fetch(c, cfg.Get)
	default:
		if err := c.WriteMessage(websocket.BinaryMessage, nil); err != nil {
			return err
		}
		msg, err := read(c)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(msg)
		return err
	}
}

func fetch(c *websocket.Conn, target string) error {
	u, err := url.Parse(target)
	if err != nil {
		return err
	}
	req := &httpx.Request{
		Method:  "GET",
		Target:  u.String(),
		Proto:   "HTTP/1.1",
		Headers: httpx.Headers{{Name: "Host", Value: u.Host}},
	}
	var buf bytes.Buffer
	if _, err := req.WriteTo(&buf); err != nil {
		return err
	}
	if err := c.WriteMessage(websocket.BinaryMessage, buf.Bytes()); err != nil {
		return err
	}
	msg, err := read(c)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(msg)
	return err
}

func tunnel(c *websocket.Conn, target string) error {
	req := &httpx.Request{
		Method:  "CONNECT",
		Target:  target,
		Proto:   "HTTP/1.1",
		Headers: httpx.Headers{{Name: "Host", Value: target}},
	}
	var buf bytes.Buffer
	if _, err := req.WriteTo(&buf); err != nil {
		return err
	}
	if err := c.WriteMessage(websocket.BinaryMessage, buf.Bytes()); err != nil {
		return err
	}
	ack, err := read(c)
	if err != nil {
		return err
	}
	if !bytes.Equal(ack, relay.TunnelAck) {
		return fmt.Errorf("tunnel refused: %q", ack)
	}
	obs.Info("client.tunnel", obs.Fields{"target": target})

	go func() {
		b := make([]byte, 32*1024)
		for {
			n, err := os.Stdin.Read(b)
			if n > 0 {
				if werr := c.WriteMessage(websocket.BinaryMessage, b[:n]); werr != nil {
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()

	_ = c.SetReadDeadline(time.Time{})
	for {
		_, msg, err := c.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if _, err := os.Stdout.Write(msg); err != nil {
			return err
		}
	}
}

func read(c *websocket.Conn) ([]byte, error) {
	if err := c.SetReadDeadline(time.Now().Add(cfg.Timeout)); err != nil {
		return nil, err
	}
	_, msg, err := c.ReadMessage()
	return msg, err
}
