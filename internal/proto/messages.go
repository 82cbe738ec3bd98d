// Package proto defines the JSON documents served by the administrative endpoints and the
// client share link format.
package proto

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// Config is the discovery document served at /config.
type Config struct {
	UUID        string `json:"uuid"`
	Path        string `json:"path"`
	Host        string `json:"host"`
	Created     string `json:"created"`
	Status      string `json:"status"`
	Version     string `json:"version"`
	Connections int    `json:"connections"`
}

// Memory reports process memory in megabytes, formatted as "<n> MB". RSS is the memory the
// Go runtime holds from the OS, HeapUsed the live heap.
type Memory struct {
	RSS      string `json:"rss"`
	HeapUsed string `json:"heapUsed"`
}

// Status is the health document served at /status.
type Status struct {
	Status             string `json:"status"`
	UUID               string `json:"uuid"`
	Connections        int    `json:"connections"`
	ClusterConnections int    `json:"cluster_connections"`
	Uptime             int64  `json:"uptime"`
	Memory             Memory `json:"memory"`
	Timestamp          string `json:"timestamp"`
	Version            string `json:"version"`
}

const vmessScheme = "vmess://"

// VMess is the client profile encoded into a share link.
type VMess struct {
	V    string `json:"v"`
	PS   string `json:"ps"`
	Add  string `json:"add"`
	Port int    `json:"port"`
	ID   string `json:"id"`
	AID  int    `json:"aid"`
	Net  string `json:"net"`
	Type string `json:"type"`
	Host string `json:"host"`
	Path string `json:"path"`
	TLS  string `json:"tls"`
	SNI  string `json:"sni"`
}

// NewVMess builds the stream-transport profile for a relay reachable at host.
func NewVMess(id, path, host, carrierHost string, tls bool) VMess {
	v := VMess{
		V:    "2",
		PS:   "联通免流",
		Add:  host,
		Port: 80,
		ID:   id,
		Net:  "ws",
		Type: "none",
		Host: carrierHost,
		Path: path,
		SNI:  carrierHost,
	}
	if tls {
		v.Port = 443
		v.TLS = "tls"
	}
	return v
}

// Link encodes v as vmess://<base64 json>.
func (v VMess) Link() (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return vmessScheme + base64.StdEncoding.EncodeToString(b), nil
}

// ParseVMessLink decodes a link produced by Link.
func ParseVMessLink(link string) (VMess, error) {
	var v VMess
	payload, ok := strings.CutPrefix(link, vmessScheme)
	if !ok {
		return v, fmt.Errorf("not a vmess link: %q", link)
	}
	b, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return v, fmt.Errorf("decode vmess link: %w", err)
	}
	if err := json.Unmarshal(b, &v); err != nil {
		return v, fmt.Errorf("decode vmess profile: %w", err)
	}
	return v, nil
}
