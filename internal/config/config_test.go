package config

import "testing"

func TestLoadAppliesDefaultsWithNoFileOrEnv(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("API_PORT", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.FunctionTag != "draw" {
		t.Fatalf("expected default function tag 'draw', got %q", cfg.FunctionTag)
	}
	if cfg.APIPort != 8080 {
		t.Fatalf("expected default api port 8080, got %d", cfg.APIPort)
	}
}

func TestLoadEnvOverridesDefault(t *testing.T) {
	t.Setenv("API_PORT", "9090")
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.APIPort != 9090 {
		t.Fatalf("expected env override 9090, got %d", cfg.APIPort)
	}
}

func TestLoadDefaultsValkeyURLWhenUnset(t *testing.T) {
	t.Setenv("REDIS_URL", "")
	t.Setenv("VALKEY_URL", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.RedisURL != "redis://127.0.0.1:6379" {
		t.Fatalf("expected default KV URL, got %q", cfg.RedisURL)
	}
	if cfg.ListenAddr != "0.0.0.0:3000" {
		t.Fatalf("expected default listen addr, got %q", cfg.ListenAddr)
	}
}

func TestLoadValkeyURLWinsOverRedisURL(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://old-host:6379")
	t.Setenv("VALKEY_URL", "redis://new-host:6379")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.RedisURL != "redis://new-host:6379" {
		t.Fatalf("expected VALKEY_URL to win, got %q", cfg.RedisURL)
	}
}

func TestLoadListenAddrOverride(t *testing.T) {
	t.Setenv("LISTEN_ADDR", "127.0.0.1:9000")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ListenAddr != "127.0.0.1:9000" {
		t.Fatalf("expected env override, got %q", cfg.ListenAddr)
	}
}

func TestSplitNonEmpty(t *testing.T) {
	got := splitNonEmpty("a.node.com, b.node.com ;c.node.com")
	want := []string{"a.node.com", "b.node.com", "c.node.com"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}
