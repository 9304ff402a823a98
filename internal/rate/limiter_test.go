package rate

import (
	"testing"
	"time"
)

func TestKeyedLimiterBurst(t *testing.T) {
	limiter := NewKeyedLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		if !limiter.Allow("user-1") {
			t.Fatalf("call %d within burst was denied", i+1)
		}
	}
	if limiter.Allow("user-1") {
		t.Fatal("call past burst was allowed")
	}
	if !limiter.Allow("user-2") {
		t.Fatal("unrelated key was throttled")
	}
}

func TestKeyedLimiterClampsBadSettings(t *testing.T) {
	limiter := NewKeyedLimiter(0, 0)

	if !limiter.Allow("user-1") {
		t.Fatal("first call was denied")
	}
	if limiter.Allow("user-1") {
		t.Fatal("expected single-token bucket after clamping")
	}
}
