package tools

import (
	"testing"
	"time"
)

func TestNewToolRateLimiter_Disabled(t *testing.T) {
	if rl := NewToolRateLimiter(0, time.Hour); rl != nil {
		t.Errorf("expected nil for max=0, got %v", rl)
	}
}

func TestToolRateLimiter_WindowPerKey(t *testing.T) {
	rl := NewToolRateLimiter(2, time.Hour)
	for i := 0; i < 2; i++ {
		if err := rl.Allow("execute_code"); err != nil {
			t.Errorf("call %d should be allowed: %v", i, err)
		}
	}
	if err := rl.Allow("execute_code"); err == nil {
		t.Error("expected third call to be limited")
	}
	if err := rl.Allow("mouse_click"); err != nil {
		t.Errorf("expected other key to be allowed: %v", err)
	}
}

func TestToolRateLimiter_WindowExpires(t *testing.T) {
	rl := NewToolRateLimiter(1, 20*time.Millisecond)
	if err := rl.Allow("k"); err != nil {
		t.Fatalf("first call: %v", err)
	}
	time.Sleep(30 * time.Millisecond)
	if err := rl.Allow("k"); err != nil {
		t.Errorf("expected call after window to be allowed: %v", err)
	}
	rl.Cleanup()
}
