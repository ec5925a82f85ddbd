package cti

import (
	"crypto/tls"
	"net"
	"strconv"
	"time"
)

// Endpoint is one gateway side.
type Endpoint struct {
	Host       string
	Port       int
	SecurePort int
}

// Config holds everything a Session needs to reach and open the gateway.
type Config struct {
	SideA Endpoint // dialed while the active side is selected
	SideB Endpoint // dialed while the standby side is selected

	Secure    bool
	TLSConfig *tls.Config

	ConnectTimeout    time.Duration
	HeartbeatInterval time.Duration

	ClientID          string
	ClientPassword    string
	VersionNumber     uint32
	IdleTimeout       uint32
	PeripheralID      uint32
	ServicesRequested uint32
	CallMessageMask   uint32
	AgentStateMask    uint32
	ConfigMessageMask uint32

	// QueryRate limits outbound agent queries per second; zero disables
	// the limit. QueryQueue bounds the number of queries waiting to be sent.
	QueryRate  float64
	QueryBurst int
	QueryQueue int
}

// DefaultConfig returns the open parameters the bridge has always used
// against a single local gateway.
func DefaultConfig() Config {
	return Config{
		SideA:             Endpoint{Host: "127.0.0.1", Port: 42027, SecurePort: 42030},
		SideB:             Endpoint{Host: "127.0.0.1", Port: 42027, SecurePort: 42030},
		ConnectTimeout:    5 * time.Second,
		HeartbeatInterval: 5 * time.Second,
		ClientID:          "ctmonitor",
		VersionNumber:     24,
		IdleTimeout:       300,
		PeripheralID:      5000,
		ServicesRequested: 0x80 | 0x10 | 0x04,
		CallMessageMask:   0xffffffff,
		AgentStateMask:    0x3fff,
		QueryRate:         50,
		QueryBurst:        100,
		QueryQueue:        1024,
	}
}

// Address returns host:port for the given side, honoring Secure.
func (c Config) Address(side SideName) string {
	ep := c.SideA
	if side == SideStandby {
		ep = c.SideB
	}
	port := ep.Port
	if c.Secure {
		port = ep.SecurePort
	}
	return net.JoinHostPort(ep.Host, strconv.Itoa(port))
}
