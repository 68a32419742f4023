package broker

import (
	"strings"
	"testing"
)

func TestValidateNamespaceOwnership(t *testing.T) {
	if err := ValidateNamespaceOwnership("u1000-alice-ops", 1000); err != nil {
		t.Errorf("matching uid rejected: %v", err)
	}
	if err := ValidateNamespaceOwnership("u1000-alice-ops", 1001); err == nil {
		t.Error("mismatching uid accepted")
	}
	if err := ValidateNamespaceOwnership("u1000-", 1000); err == nil {
		t.Error("empty suffix accepted")
	}
	if err := ValidateNamespaceOwnership("u1000-a\x00b", 1000); err == nil {
		t.Error("NUL suffix accepted")
	}
	if err := ValidateNamespaceOwnership("v1000-x", 1000); err == nil {
		t.Error("wrong prefix accepted")
	}
}

func TestClampOptionsDefaultsWhenEmpty(t *testing.T) {
	got := ClampOptions(nil)
	if got != DefaultDropInConfig() {
		t.Errorf("ClampOptions(nil) = %+v, want defaults", got)
	}
}

func TestClampOptionsMaxUse(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"1G", "512M"}, // clamped to the ceiling
		{"128M", "128M"},
		{"1024K", "1M"},
		{"1048576", "1M"},
		{"  256M  ", "256M"},
		{"not-a-number", "64M"}, // fallback, never reject
		{"0M", "64M"},
		{"", "64M"},
	}
	for _, tc := range cases {
		got := ClampOptions(map[string]string{"max_use": tc.in})
		if got.SystemMaxUse != tc.want {
			t.Errorf("max_use %q -> %q, want %q", tc.in, got.SystemMaxUse, tc.want)
		}
	}
}

func TestClampOptionsInterval(t *testing.T) {
	got := ClampOptions(map[string]string{"rate_limit_interval_usec": "100"})
	if got.RateLimitIntervalUsec != MinRateLimitIntervalUsec {
		t.Errorf("interval = %d, want floor %d", got.RateLimitIntervalUsec, MinRateLimitIntervalUsec)
	}
	got = ClampOptions(map[string]string{"rate_limit_interval_usec": "9999999999999"})
	if got.RateLimitIntervalUsec != MaxRateLimitIntervalUsec {
		t.Errorf("interval = %d, want ceiling %d", got.RateLimitIntervalUsec, MaxRateLimitIntervalUsec)
	}
	got = ClampOptions(map[string]string{"rate_limit_interval_usec": "junk"})
	if got.RateLimitIntervalUsec != DefaultRateLimitIntervalUsec {
		t.Errorf("interval = %d, want default", got.RateLimitIntervalUsec)
	}
}

func TestClampOptionsBurst(t *testing.T) {
	got := ClampOptions(map[string]string{"rate_limit_burst": "99999"})
	if got.RateLimitBurst != MaxRateLimitBurst {
		t.Errorf("burst = %d, want %d", got.RateLimitBurst, MaxRateLimitBurst)
	}
	got = ClampOptions(map[string]string{"rate_limit_burst": "0"})
	if got.RateLimitBurst != DefaultRateLimitBurst {
		t.Errorf("burst = %d, want default for zero", got.RateLimitBurst)
	}
	got = ClampOptions(map[string]string{"rate_limit_burst": "500"})
	if got.RateLimitBurst != 500 {
		t.Errorf("burst = %d, want 500", got.RateLimitBurst)
	}
}

func TestRenderDropInWholeSeconds(t *testing.T) {
	content := RenderDropIn(DropInConfig{
		SystemMaxUse:          "128M",
		RateLimitIntervalUsec: 30_000_000,
		RateLimitBurst:        1000,
	})
	for _, want := range []string{"[Journal]", "SystemMaxUse=128M", "RateLimitIntervalSec=30s", "RateLimitBurst=1000"} {
		if !strings.Contains(content, want) {
			t.Errorf("drop-in missing %q:\n%s", want, content)
		}
	}
}

func TestRenderDropInSubSecondUsesMicroseconds(t *testing.T) {
	content := RenderDropIn(DropInConfig{
		SystemMaxUse:          "64M",
		RateLimitIntervalUsec: 500_000,
		RateLimitBurst:        100,
	})
	if !strings.Contains(content, "RateLimitIntervalSec=500000us") {
		t.Errorf("drop-in interval not in microseconds:\n%s", content)
	}
}
