// Package config centralizes environment parsing into a typed Config,
// with an optional YAML file overlay applied before env overrides.
package config

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable the pixel-board pipeline needs at startup.
type Config struct {
	RedisURL string `yaml:"redis_url"`

	ListenAddr string `yaml:"listen_addr"`

	FlowAccessNodes []string `yaml:"flow_access_nodes"`
	ContractID      string   `yaml:"contract_id"`
	FunctionTag     string   `yaml:"function_tag"`
	StartHeight     uint64   `yaml:"start_height"`

	APIPort        int `yaml:"api_port"`
	RateLimitRPS   int `yaml:"rate_limit_rps"`
	RateLimitBurst int `yaml:"rate_limit_burst"`

	AdminJWTSecret string `yaml:"admin_jwt_secret"`

	SnapshotDBURL string `yaml:"snapshot_db_url"`

	SvixAuthToken string `yaml:"svix_auth_token"`
	SvixServerURL string `yaml:"svix_server_url"`
	SvixAppID     string `yaml:"svix_app_id"`
}

// Load builds a Config, optionally overlaying a YAML file named by the
// CONFIG_FILE env var (or the path argument, if non-empty) before applying
// env-var overrides, matching the teacher's overlay-then-override order.
func Load(path string) (*Config, error) {
	cfg := &Config{
		FunctionTag:    "draw",
		APIPort:        8080,
		ListenAddr:     "0.0.0.0:3000",
		RateLimitRPS:   10,
		RateLimitBurst: 30,
	}

	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	cfg.RedisURL = getEnvDefault("VALKEY_URL", getEnvDefault("REDIS_URL", cfg.RedisURL))
	if cfg.RedisURL == "" {
		cfg.RedisURL = "redis://127.0.0.1:6379"
	}
	cfg.ListenAddr = getEnvDefault("LISTEN_ADDR", cfg.ListenAddr)
	cfg.ContractID = getEnvDefault("CONTRACT_ID", cfg.ContractID)
	cfg.FunctionTag = getEnvDefault("FUNCTION_TAG", cfg.FunctionTag)
	cfg.AdminJWTSecret = getEnvDefault("ADMIN_JWT_SECRET", cfg.AdminJWTSecret)
	cfg.SnapshotDBURL = getEnvDefault("SNAPSHOT_DB_URL", cfg.SnapshotDBURL)
	cfg.SvixAuthToken = getEnvDefault("SVIX_AUTH_TOKEN", cfg.SvixAuthToken)
	cfg.SvixServerURL = getEnvDefault("SVIX_SERVER_URL", cfg.SvixServerURL)
	cfg.SvixAppID = getEnvDefault("SVIX_APP_ID", cfg.SvixAppID)

	if nodes := splitNonEmpty(os.Getenv("FLOW_ACCESS_NODES")); len(nodes) > 0 {
		cfg.FlowAccessNodes = nodes
	}

	cfg.StartHeight = getEnvUint(cfg.StartHeight, "START_HEIGHT")
	cfg.APIPort = getEnvInt(cfg.APIPort, "API_PORT")
	cfg.RateLimitRPS = getEnvInt(cfg.RateLimitRPS, "RATE_LIMIT_RPS")
	cfg.RateLimitBurst = getEnvInt(cfg.RateLimitBurst, "RATE_LIMIT_BURST")

	return cfg, nil
}

func getEnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(def int, key string) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvUint(def uint64, key string) uint64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func splitNonEmpty(raw string) []string {
	var out []string
	start := 0
	isSep := func(r byte) bool { return r == ',' || r == ';' || r == ' ' }
	for i := 0; i <= len(raw); i++ {
		if i == len(raw) || isSep(raw[i]) {
			if i > start {
				out = append(out, raw[start:i])
			}
			start = i + 1
		}
	}
	return out
}
