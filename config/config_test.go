package config

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.ServerPort != ":8080" || cfg.Session.TTL != time.Hour || cfg.Exam.TimeGrace != 5*time.Second {
		t.Errorf("defaults = %+v", cfg)
	}
	if cfg.Redis.Addr != "" || cfg.LoginRate.Requests != 10 || cfg.MetricsAddr != "127.0.0.1:9090" {
		t.Errorf("defaults = %+v", cfg)
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("EXAMPORTAL_SESSION_TTL", "30m")
	t.Setenv("EXAMPORTAL_REDIS_ADDR", "localhost:6379")
	t.Setenv("EXAMPORTAL_EXAM_TIME_GRACE", "2s")
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Session.TTL != 30*time.Minute || cfg.Redis.Addr != "localhost:6379" || cfg.Exam.TimeGrace != 2*time.Second {
		t.Errorf("env overrides not applied: %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Session:   SessionConfig{SigningKey: "k", TTL: time.Hour},
			LoginRate: RateLimitConfig{Requests: 5, Window: time.Minute},
		}
	}
	c := valid()
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate(valid) = %v", err)
	}

	tests := map[string]func(*Config){
		"no signing key": func(c *Config) { c.Session.SigningKey = "" },
		"zero ttl":       func(c *Config) { c.Session.TTL = 0 },
		"negative grace": func(c *Config) { c.Exam.TimeGrace = -time.Second },
		"no rate":        func(c *Config) { c.LoginRate.Requests = 0 },
		"shared metrics": func(c *Config) { c.ServerPort, c.MetricsAddr = ":8080", ":8080" },
	}
	for name, mutate := range tests {
		c := valid()
		mutate(&c)
		if err := c.Validate(); err == nil {
			t.Errorf("%s: Validate succeeded", name)
		}
	}
}
