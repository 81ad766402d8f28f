package util

import (
	"testing"
	"time"
)

func TestEnvOrDefault(t *testing.T) {
	t.Setenv("SCRUMBOARD_TEST_VALUE", "")
	if got := EnvOrDefault("SCRUMBOARD_TEST_VALUE", "fallback"); got != "fallback" {
		t.Fatalf("expected fallback, got %q", got)
	}
	t.Setenv("SCRUMBOARD_TEST_VALUE", "set")
	if got := EnvOrDefault("SCRUMBOARD_TEST_VALUE", "fallback"); got != "set" {
		t.Fatalf("expected set, got %q", got)
	}
}

func TestEnvIntOrDefault(t *testing.T) {
	t.Setenv("SCRUMBOARD_TEST_INT", "7")
	if got := EnvIntOrDefault("SCRUMBOARD_TEST_INT", 3); got != 7 {
		t.Fatalf("expected 7, got %d", got)
	}
	t.Setenv("SCRUMBOARD_TEST_INT", "seven")
	if got := EnvIntOrDefault("SCRUMBOARD_TEST_INT", 3); got != 3 {
		t.Fatalf("malformed value should fall back, got %d", got)
	}
}

func TestEnvDurationOrDefault(t *testing.T) {
	t.Setenv("SCRUMBOARD_TEST_DURATION", "250ms")
	if got := EnvDurationOrDefault("SCRUMBOARD_TEST_DURATION", time.Second); got != 250*time.Millisecond {
		t.Fatalf("expected 250ms, got %s", got)
	}
	t.Setenv("SCRUMBOARD_TEST_DURATION", "")
	if got := EnvDurationOrDefault("SCRUMBOARD_TEST_DURATION", time.Second); got != time.Second {
		t.Fatalf("expected fallback, got %s", got)
	}
}
