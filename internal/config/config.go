// Package config loads the supervisor's process-level configuration.
//
// Everything is environment-only (spec §6): there is no config file and
// no persisted state. A .env file is honored for local development, the
// same way the teacher's main.go loads one before reading the process
// environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ControlPlane ControlPlaneConfig
	HLS          HLSConfig
	Gateway      GatewayConfig
	Admin        AdminConfig
	Signing      SigningConfig
	Logging      LoggingConfig
	Tunnel       TunnelConfig
}

type LoggingConfig struct {
	FilePath string
}

type TunnelConfig struct {
	BinPath string
}

type ControlPlaneConfig struct {
	BaseURL    string
	DeviceID   string
	DeviceToken string
	FetchTimeout time.Duration
}

type HLSConfig struct {
	Root           string
	SegmentSeconds int
	WindowSegments int
}

type GatewayConfig struct {
	URL string
}

type AdminConfig struct {
	ListenAddr string
}

type SigningConfig struct {
	Secret     string
	PublicBase string
	TTL        time.Duration
}

// Load reads the process environment. It never touches the network; its
// only filesystem access is reading DEVICE_TOKEN_FILE when DEVICE_TOKEN
// is unset (an optional .env read is performed by the caller).
func Load() (*Config, error) {
	token, err := resolveDeviceToken()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ControlPlane: ControlPlaneConfig{
			BaseURL:      strings.TrimRight(getEnv("CONTROL_PLANE_URL", "https://api.beachvar.com"), "/"),
			DeviceID:     getEnv("DEVICE_ID", ""),
			DeviceToken:  token,
			FetchTimeout: getEnvDuration("CONTROL_PLANE_TIMEOUT", 10*time.Second),
		},
		HLS: HLSConfig{
			Root:           getEnv("HLS_ROOT", "/dev/shm/hls"),
			SegmentSeconds: getEnvInt("HLS_SEGMENT_SECONDS", 2),
			WindowSegments: getEnvInt("HLS_WINDOW_SEGMENTS", 120),
		},
		Gateway: GatewayConfig{
			URL: getEnv("GATEWAY_URL", ""),
		},
		Admin: AdminConfig{
			ListenAddr: getEnv("ADMIN_LISTEN_ADDR", ":8090"),
		},
		Signing: SigningConfig{
			Secret:     getEnv("URL_SIGNING_SECRET", ""),
			PublicBase: strings.TrimRight(getEnv("PUBLIC_BASE_URL", ""), "/"),
			TTL:        getEnvDuration("URL_SIGNING_TTL", 12*time.Hour),
		},
		Logging: LoggingConfig{
			FilePath: getEnv("LOG_FILE", ""),
		},
		Tunnel: TunnelConfig{
			BinPath: getEnv("TUNNEL_BIN_PATH", ""),
		},
	}

	if cfg.ControlPlane.DeviceID == "" {
		return nil, fmt.Errorf("config: DEVICE_ID is required")
	}
	if cfg.ControlPlane.DeviceToken == "" {
		return nil, fmt.Errorf("config: DEVICE_TOKEN or DEVICE_TOKEN_FILE is required")
	}

	return cfg, nil
}

// resolveDeviceToken accepts either a literal token or a file path
// containing one, per spec §6 ("the device token (or a file path
// containing it)").
func resolveDeviceToken() (string, error) {
	if tok := os.Getenv("DEVICE_TOKEN"); tok != "" {
		return tok, nil
	}
	path := os.Getenv("DEVICE_TOKEN_FILE")
	if path == "" {
		return "", nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("config: reading DEVICE_TOKEN_FILE: %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultValue
	}
	return d
}
