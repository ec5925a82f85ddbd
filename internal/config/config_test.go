package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr bool
		check   func(*testing.T, *Config)
	}{
		{
			name: "default values",
			env:  map[string]string{},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Port != "8085" {
					t.Errorf("expected port 8085, got %s", cfg.Port)
				}
				if cfg.LogLevel != "info" {
					t.Errorf("expected log level info, got %s", cfg.LogLevel)
				}
				if cfg.WSReadTimeout != 60*time.Second {
					t.Errorf("expected WSReadTimeout 60s, got %v", cfg.WSReadTimeout)
				}
				if !cfg.WSEnabled || !cfg.TCPEnabled {
					t.Error("expected both transports enabled by default")
				}
				if cfg.CTI.SideA.Port != 42027 || cfg.CTI.SideA.SecurePort != 42030 {
					t.Errorf("unexpected side A ports %+v", cfg.CTI.SideA)
				}
				if cfg.CTI.HeartbeatInterval != 5*time.Second {
					t.Errorf("expected 5s heartbeat, got %v", cfg.CTI.HeartbeatInterval)
				}
				if cfg.CTI.ServicesRequested != 0x94 {
					t.Errorf("expected services 0x94, got %#x", cfg.CTI.ServicesRequested)
				}
				if cfg.Failover.SettleDelay != 500*time.Millisecond {
					t.Errorf("expected 500ms failover delay, got %v", cfg.Failover.SettleDelay)
				}
				if cfg.Auth.Enabled() {
					t.Error("expected auth disabled by default")
				}
			},
		},
		{
			name: "custom values",
			env: map[string]string{
				"PORT":             "9000",
				"LOG_LEVEL":        "debug",
				"WS_READ_TIMEOUT":  "30",
				"WS_WRITE_TIMEOUT": "5",
				"ALLOWED_ORIGINS":  "http://example.com, http://test.com",
			},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Port != "9000" {
					t.Errorf("expected port 9000, got %s", cfg.Port)
				}
				if cfg.LogLevel != "debug" {
					t.Errorf("expected log level debug, got %s", cfg.LogLevel)
				}
				if cfg.WSReadTimeout != 30*time.Second {
					t.Errorf("expected WSReadTimeout 30s, got %v", cfg.WSReadTimeout)
				}
				if cfg.WSWriteTimeout != 5*time.Second {
					t.Errorf("expected WSWriteTimeout 5s, got %v", cfg.WSWriteTimeout)
				}
				if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "http://test.com" {
					t.Errorf("unexpected allowed origins %v", cfg.AllowedOrigins)
				}
			},
		},
		{
			name: "gateway sides",
			env: map[string]string{
				"CTI_SIDE_A_HOST":       "10.0.0.1",
				"CTI_SIDE_B_HOST":       "10.0.0.2",
				"CTI_SIDE_B_PORT":       "43027",
				"CTI_SECURE":            "true",
				"CTI_TLS_INSECURE":      "true",
				"CTI_AGENT_STATE_MASK":  "0x1ff",
				"CTI_PERIPHERAL_ID":     "5001",
				"CTI_FAILOVER_DELAY_MS": "250",
			},
			check: func(t *testing.T, cfg *Config) {
				if cfg.CTI.SideA.Host != "10.0.0.1" || cfg.CTI.SideB.Host != "10.0.0.2" {
					t.Errorf("unexpected hosts %+v %+v", cfg.CTI.SideA, cfg.CTI.SideB)
				}
				if cfg.CTI.SideB.Port != 43027 {
					t.Errorf("expected side B port 43027, got %d", cfg.CTI.SideB.Port)
				}
				if !cfg.CTI.Secure || cfg.CTI.TLSConfig == nil || !cfg.CTI.TLSConfig.InsecureSkipVerify {
					t.Error("expected TLS with verification disabled")
				}
				if cfg.CTI.AgentStateMask != 0x1ff {
					t.Errorf("expected mask 0x1ff, got %#x", cfg.CTI.AgentStateMask)
				}
				if cfg.CTI.PeripheralID != 5001 {
					t.Errorf("expected peripheral 5001, got %d", cfg.CTI.PeripheralID)
				}
				if cfg.Failover.SettleDelay != 250*time.Millisecond {
					t.Errorf("expected 250ms delay, got %v", cfg.Failover.SettleDelay)
				}
			},
		},
		{
			name: "side B defaults to side A",
			env:  map[string]string{"CTI_SIDE_A_HOST": "gw.example.com"},
			check: func(t *testing.T, cfg *Config) {
				if cfg.CTI.SideB.Host != "gw.example.com" {
					t.Errorf("expected side B to follow side A, got %s", cfg.CTI.SideB.Host)
				}
			},
		},
		{
			name:    "invalid WS_READ_TIMEOUT",
			env:     map[string]string{"WS_READ_TIMEOUT": "invalid"},
			wantErr: true,
		},
		{
			name:    "invalid WS_WRITE_TIMEOUT",
			env:     map[string]string{"WS_WRITE_TIMEOUT": "invalid"},
			wantErr: true,
		},
		{
			name:    "port out of range",
			env:     map[string]string{"CTI_SIDE_A_PORT": "70000"},
			wantErr: true,
		},
		{
			name:    "invalid mask",
			env:     map[string]string{"CTI_CALL_MESSAGE_MASK": "0x1ffffffff"},
			wantErr: true,
		},
		{
			name:    "zero heartbeat",
			env:     map[string]string{"CTI_HEARTBEAT_INTERVAL_MS": "0"},
			wantErr: true,
		},
		{
			name:    "cert without key",
			env:     map[string]string{"TLS_CERT_FILE": "server.crt"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Clear environment
			os.Clearenv()

			// Set test environment variables
			for k, v := range tt.env {
				os.Setenv(k, v)
			}

			cfg, err := Load()

			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got nil")
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestWebSocketConstants(t *testing.T) {
	// Clear environment and set clean defaults
	os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	// PongWait should equal WSReadTimeout
	if cfg.PongWait != cfg.WSReadTimeout {
		t.Errorf("PongWait (%v) should equal WSReadTimeout (%v)", cfg.PongWait, cfg.WSReadTimeout)
	}

	// PingPeriod should be less than PongWait
	if cfg.PingPeriod >= cfg.PongWait {
		t.Errorf("PingPeriod (%v) should be less than PongWait (%v)", cfg.PingPeriod, cfg.PongWait)
	}

	// WriteWait should equal WSWriteTimeout
	if cfg.WriteWait != cfg.WSWriteTimeout {
		t.Errorf("WriteWait (%v) should equal WSWriteTimeout (%v)", cfg.WriteWait, cfg.WSWriteTimeout)
	}

	if cfg.MaxMessageSize <= 0 {
		t.Errorf("MaxMessageSize should be positive, got %d", cfg.MaxMessageSize)
	}
}
