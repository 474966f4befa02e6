package config

import (
	"testing"
	"time"
)

func TestDecodeSheepdogConfigNilUsesDefaults(t *testing.T) {
	cfg, err := DecodeSheepdogConfig(nil)
	if err != nil {
		t.Fatalf("DecodeSheepdogConfig: %v", err)
	}
	if cfg != DefaultSheepdogConfig() {
		t.Fatalf("got %+v, want defaults %+v", cfg, DefaultSheepdogConfig())
	}
}

func TestDecodeSheepdogConfigOverlaysFields(t *testing.T) {
	data := map[string]interface{}{
		"address":         "sheep.internal:7000",
		"dial_timeout":    "10s",
		"request_timeout": "1m",
	}
	cfg, err := DecodeSheepdogConfig(data)
	if err != nil {
		t.Fatalf("DecodeSheepdogConfig: %v", err)
	}
	if cfg.Address != "sheep.internal:7000" {
		t.Fatalf("Address = %q", cfg.Address)
	}
	if cfg.DialTimeout != 10*time.Second {
		t.Fatalf("DialTimeout = %v, want 10s", cfg.DialTimeout)
	}
	if cfg.RequestTimeout != time.Minute {
		t.Fatalf("RequestTimeout = %v, want 1m", cfg.RequestTimeout)
	}
	if cfg.Network != "tcp" {
		t.Fatalf("Network = %q, want default tcp to survive a partial overlay", cfg.Network)
	}
}
