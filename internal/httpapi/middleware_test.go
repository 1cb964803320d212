package httpapi

import (
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimitExceeded(t *testing.T) {
	h := RateLimit(okHandler(), 2, 1)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.1.2.3:5555"
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status %d", i, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}

	// A different client has its own bucket.
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.9.9.9:5555"
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("independent client was limited: %d", rec.Code)
	}
}

func TestRateLimiterEvictsStaleBuckets(t *testing.T) {
	rl := newRateLimiter(1, 1)
	now := time.Now()

	rl.allow("10.0.0.1", now)
	if len(rl.buckets) != 1 {
		t.Fatalf("expected one bucket, have %d", len(rl.buckets))
	}

	// A request past the TTL sweeps the idle bucket out.
	later := now.Add(bucketTTL + sweepInterval + time.Second)
	rl.allow("10.0.0.2", later)
	rl.mu.Lock()
	_, stale := rl.buckets["10.0.0.1"]
	n := len(rl.buckets)
	rl.mu.Unlock()
	if stale {
		t.Fatalf("idle bucket survived the sweep")
	}
	if n != 1 {
		t.Fatalf("expected only the active bucket, have %d", n)
	}

	// The evicted client starts over with a fresh burst.
	if !rl.allow("10.0.0.1", later) {
		t.Fatalf("returning client should get a fresh bucket")
	}
}

func TestRateLimitSpawnsNoGoroutines(t *testing.T) {
	before := runtime.NumGoroutine()
	for i := 0; i < 32; i++ {
		h := RateLimit(okHandler(), 1, 1)
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.1.2.3:5555"
		h.ServeHTTP(rec, req)
	}
	if after := runtime.NumGoroutine(); after > before+2 {
		t.Fatalf("goroutines grew from %d to %d", before, after)
	}
}

func TestSecurityHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SecurityHeaders(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	for header, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Cache-Control":          "no-store",
	} {
		if got := rec.Header().Get(header); got != want {
			t.Fatalf("%s = %q, want %q", header, got, want)
		}
	}
}

func TestLoggingSetsRequestID(t *testing.T) {
	rec := httptest.NewRecorder()
	Logging(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatalf("expected a request id header")
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:1234"
	if ip := clientIP(req); ip != "192.0.2.7" {
		t.Fatalf("remote addr: got %q", ip)
	}

	req.Header.Set("X-Forwarded-For", "203.0.113.5, 192.0.2.7")
	if ip := clientIP(req); ip != "203.0.113.5" {
		t.Fatalf("forwarded for: got %q", ip)
	}
}

func TestExtractBearerToken(t *testing.T) {
	cases := map[string]struct {
		header  string
		want    string
		wantErr bool
	}{
		"plain":            {header: "Bearer abc123", want: "abc123"},
		"case insensitive": {header: "bearer abc123", want: "abc123"},
		"padded":           {header: "  Bearer abc123  ", want: "abc123"},
		"empty":            {header: "", wantErr: true},
		"wrong scheme":     {header: "Basic abc123", wantErr: true},
		"no token":         {header: "Bearer ", wantErr: true},
	}
	for name, tc := range cases {
		token, err := extractBearerToken(tc.header)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("%s: expected error", name)
			}
			continue
		}
		if err != nil || token != tc.want {
			t.Fatalf("%s: got %q err=%v", name, token, err)
		}
	}
}
