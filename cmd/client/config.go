package main

import (
	"time"

	"github.com/spf13/pflag"
)

// Config holds client runtime configuration.
type Config struct {
	URL       string
	Get       string
	Connect   string
	Handshake string
	Timeout   time.Duration
	Debug     bool
}

var cfg Config

func init() {
	pflag.StringVar(&cfg.URL, "url", "ws://127.0.0.1:3000/unicom", "relay stream url")
	pflag.StringVar(&cfg.Get, "get", "", "absolute http url to fetch through the relay")
	pflag.StringVar(&cfg.Connect, "connect", "", "host:port to open a tunnel to; stdin and stdout are piped through it")
	pflag.StringVar(&cfg.Handshake, "handshake", "\x05\x01\x00", "first frame sent to the relay")
	pflag.DurationVar(&cfg.Timeout, "timeout", 30*time.Second, "wait for each reply")
	pflag.BoolVar(&cfg.Debug, "debug", false, "enable debug logs")
}
