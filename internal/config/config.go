package config

import (
	"crypto/tls"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/dennisdiepolder/monti/ctmbridge/internal/auth"
	"github.com/dennisdiepolder/monti/ctmbridge/internal/cti"
	"github.com/dennisdiepolder/monti/ctmbridge/internal/supervisor"
)

// Config holds all configuration for the application
type Config struct {
	Port           string
	AllowedOrigins []string
	LogLevel       string
	LogFormat      string
	SampleInterval time.Duration

	WSEnabled      bool
	WSPath         string
	WSReadTimeout  time.Duration
	WSWriteTimeout time.Duration
	PingPeriod     time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64
	SendBuffer     int

	TCPEnabled  bool
	TCPPort     string
	TLSCertFile string
	TLSKeyFile  string

	CTI      cti.Config
	Failover supervisor.Config
	Auth     auth.Config
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	config := &Config{
		Port:           getEnv("PORT", "8085"),
		AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "http://localhost:5173"), ","),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "console"),
		WSPath:         getEnv("WS_PATH", "/ws"),
		TCPPort:        getEnv("TCP_PORT", "42100"),
		TLSCertFile:    getEnv("TLS_CERT_FILE", ""),
		TLSKeyFile:     getEnv("TLS_KEY_FILE", ""),
		Auth: auth.Config{
			Secret:  getEnv("JWT_SECRET", ""),
			JWKSURL: getEnv("JWKS_URL", ""),
			Issuer:  getEnv("JWT_ISSUER", ""),
		},
	}

	var err error
	if config.WSEnabled, err = parseBool("WS_ENABLED", "true"); err != nil {
		return nil, err
	}
	if config.TCPEnabled, err = parseBool("TCP_ENABLED", "true"); err != nil {
		return nil, err
	}
	if _, err := parsePort("PORT", config.Port); err != nil {
		return nil, err
	}
	if _, err := parsePort("TCP_PORT", config.TCPPort); err != nil {
		return nil, err
	}
	if (config.TLSCertFile == "") != (config.TLSKeyFile == "") {
		return nil, fmt.Errorf("TLS_CERT_FILE and TLS_KEY_FILE must be set together")
	}

	// Parse WebSocket timeouts
	wsReadTimeout, err := strconv.Atoi(getEnv("WS_READ_TIMEOUT", "60"))
	if err != nil {
		return nil, fmt.Errorf("invalid WS_READ_TIMEOUT: %w", err)
	}
	config.WSReadTimeout = time.Duration(wsReadTimeout) * time.Second

	wsWriteTimeout, err := strconv.Atoi(getEnv("WS_WRITE_TIMEOUT", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid WS_WRITE_TIMEOUT: %w", err)
	}
	config.WSWriteTimeout = time.Duration(wsWriteTimeout) * time.Second

	sendBuffer, err := strconv.Atoi(getEnv("WS_SEND_BUFFER", "4096"))
	if err != nil || sendBuffer < 1 {
		return nil, fmt.Errorf("invalid WS_SEND_BUFFER: %q", getEnv("WS_SEND_BUFFER", ""))
	}
	config.SendBuffer = sendBuffer

	sampleInterval, err := strconv.Atoi(getEnv("SAMPLE_INTERVAL", "5"))
	if err != nil {
		return nil, fmt.Errorf("invalid SAMPLE_INTERVAL: %w", err)
	}
	config.SampleInterval = time.Duration(sampleInterval) * time.Second

	// Calculate WebSocket constants
	config.PongWait = config.WSReadTimeout
	config.PingPeriod = (config.PongWait * 9) / 10 // Must be less than pongWait
	config.WriteWait = config.WSWriteTimeout
	config.MaxMessageSize = 512

	// Trim spaces from allowed origins
	for i, origin := range config.AllowedOrigins {
		config.AllowedOrigins[i] = strings.TrimSpace(origin)
	}

	if config.CTI, err = loadCTI(); err != nil {
		return nil, err
	}
	if config.Failover, err = loadFailover(); err != nil {
		return nil, err
	}

	return config, nil
}

// loadCTI reads the gateway endpoints and session parameters
func loadCTI() (cti.Config, error) {
	c := cti.DefaultConfig()

	var err error
	if c.SideA, err = loadEndpoint("CTI_SIDE_A", c.SideA); err != nil {
		return c, err
	}
	// Side B falls back to side A for single-gateway setups.
	if c.SideB, err = loadEndpoint("CTI_SIDE_B", c.SideA); err != nil {
		return c, err
	}

	if c.Secure, err = parseBool("CTI_SECURE", "false"); err != nil {
		return c, err
	}
	insecure, err := parseBool("CTI_TLS_INSECURE", "false")
	if err != nil {
		return c, err
	}
	if c.Secure {
		c.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12, InsecureSkipVerify: insecure}
	}

	if c.ConnectTimeout, err = parseMillis("CTI_CONNECT_TIMEOUT_MS", "5000"); err != nil {
		return c, err
	}
	if c.HeartbeatInterval, err = parseMillis("CTI_HEARTBEAT_INTERVAL_MS", "5000"); err != nil {
		return c, err
	}

	c.ClientID = getEnv("CTI_CLIENT_ID", c.ClientID)
	c.ClientPassword = getEnv("CTI_CLIENT_PASSWORD", c.ClientPassword)

	fields := []struct {
		key string
		dst *uint32
	}{
		{"CTI_PERIPHERAL_ID", &c.PeripheralID},
		{"CTI_VERSION", &c.VersionNumber},
		{"CTI_IDLE_TIMEOUT", &c.IdleTimeout},
		{"CTI_SERVICES_REQUESTED", &c.ServicesRequested},
		{"CTI_CALL_MESSAGE_MASK", &c.CallMessageMask},
		{"CTI_AGENT_STATE_MASK", &c.AgentStateMask},
		{"CTI_CONFIG_MESSAGE_MASK", &c.ConfigMessageMask},
	}
	for _, f := range fields {
		v, err := parseUint32(f.key, *f.dst)
		if err != nil {
			return c, err
		}
		*f.dst = v
	}

	rate, err := strconv.ParseFloat(getEnv("CTI_QUERY_RATE", strconv.FormatFloat(c.QueryRate, 'f', -1, 64)), 64)
	if err != nil || rate < 0 {
		return c, fmt.Errorf("invalid CTI_QUERY_RATE: %q", getEnv("CTI_QUERY_RATE", ""))
	}
	c.QueryRate = rate

	burst, err := strconv.Atoi(getEnv("CTI_QUERY_BURST", strconv.Itoa(c.QueryBurst)))
	if err != nil || burst < 1 {
		return c, fmt.Errorf("invalid CTI_QUERY_BURST: %q", getEnv("CTI_QUERY_BURST", ""))
	}
	c.QueryBurst = burst

	return c, nil
}

func loadEndpoint(prefix string, def cti.Endpoint) (cti.Endpoint, error) {
	ep := cti.Endpoint{Host: getEnv(prefix+"_HOST", def.Host)}

	var err error
	if ep.Port, err = parsePort(prefix+"_PORT", getEnv(prefix+"_PORT", strconv.Itoa(def.Port))); err != nil {
		return ep, err
	}
	if ep.SecurePort, err = parsePort(prefix+"_SECURE_PORT", getEnv(prefix+"_SECURE_PORT", strconv.Itoa(def.SecurePort))); err != nil {
		return ep, err
	}
	return ep, nil
}

func loadFailover() (supervisor.Config, error) {
	var (
		c   supervisor.Config
		err error
	)
	if c.SettleDelay, err = parseMillis("CTI_FAILOVER_DELAY_MS", "500"); err != nil {
		return c, err
	}
	if c.MaxBackoff, err = parseMillis("CTI_MAX_BACKOFF_MS", "30000"); err != nil {
		return c, err
	}
	if c.MaxBackoff < c.SettleDelay {
		return c, fmt.Errorf("CTI_MAX_BACKOFF_MS must not be below CTI_FAILOVER_DELAY_MS")
	}
	return c, nil
}

// getEnv gets an environment variable with a fallback default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseBool(key, def string) (bool, error) {
	v, err := strconv.ParseBool(getEnv(key, def))
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func parsePort(key, value string) (int, error) {
	p, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if p < 1 || p > 65535 {
		return 0, fmt.Errorf("invalid %s: %d out of range", key, p)
	}
	return p, nil
}

func parseMillis(key, def string) (time.Duration, error) {
	ms, err := strconv.Atoi(getEnv(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if ms <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// parseUint32 accepts decimal or 0x-prefixed hexadecimal values
func parseUint32(key string, def uint32) (uint32, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseUint(raw, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return uint32(v), nil
}
