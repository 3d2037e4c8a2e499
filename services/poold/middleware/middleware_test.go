package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"thurman/crypto"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func testAddress(b byte) crypto.Address {
	var a crypto.Address
	a[0] = b
	a[19] = b
	return a
}

func callerEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, ok := CallerFromContext(r.Context())
		if !ok {
			_, _ = w.Write([]byte("anonymous"))
			return
		}
		_, _ = w.Write([]byte(caller.String()))
	})
}

func TestAuthenticatorResolvesSubject(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	auth := NewAuthenticator(AuthConfig{Enabled: true, HMACSecret: testSecret, Issuer: "thurman", OptionalPaths: []string{"/healthz"}}, nil)
	auth.now = func() time.Time { return now }
	handler := auth.Middleware()(callerEcho())

	caller := testAddress(7)
	token, err := IssueToken(testSecret, caller, "thurman", "", time.Hour, now)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/v1/pools", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK || res.Body.String() != caller.String() {
		t.Fatalf("expected caller %s, got %d %q", caller, res.Code, res.Body.String())
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if res.Code != http.StatusOK || res.Body.String() != "anonymous" {
		t.Fatalf("expected optional path to pass anonymously, got %d %q", res.Code, res.Body.String())
	}
}

func TestAuthenticatorRejections(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	auth := NewAuthenticator(AuthConfig{Enabled: true, HMACSecret: testSecret, Issuer: "thurman", ClockSkew: time.Second}, nil)
	auth.now = func() time.Time { return now }
	handler := auth.Middleware()(callerEcho())
	caller := testAddress(7)

	expired, _ := IssueToken(testSecret, caller, "thurman", "", time.Minute, now.Add(-time.Hour))
	wrongIssuer, _ := IssueToken(testSecret, caller, "other", "", time.Hour, now)
	wrongSecret, _ := IssueToken("ffffffffffffffffffffffffffffffff", caller, "thurman", "", time.Hour, now)
	badSubject, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "not-an-address",
		Issuer:    "thurman",
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}).SignedString([]byte(testSecret))
	noExpiry, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject: caller.String(),
		Issuer:  "thurman",
	}).SignedString([]byte(testSecret))

	for name, header := range map[string]string{
		"missing":    "",
		"not bearer": "Basic abc",
		"expired":    "Bearer " + expired,
		"issuer":     "Bearer " + wrongIssuer,
		"signature":  "Bearer " + wrongSecret,
		"subject":    "Bearer " + badSubject,
		"no expiry":  "Bearer " + noExpiry,
		"garbage":    "Bearer abc.def.ghi",
	} {
		req := httptest.NewRequest(http.MethodGet, "/v1/pools", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		if res.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", name, res.Code)
		}
	}
}

func TestAuthenticatorDisabledUsesDevHeader(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{DevCallerHeader: "X-Caller"}, nil)
	handler := auth.Middleware()(callerEcho())
	caller := testAddress(3)

	req := httptest.NewRequest(http.MethodGet, "/v1/pools", nil)
	req.Header.Set("X-Caller", caller.String())
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Body.String() != caller.String() {
		t.Fatalf("expected dev caller, got %q", res.Body.String())
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/pools", nil))
	if res.Body.String() != "anonymous" {
		t.Fatalf("expected anonymous, got %q", res.Body.String())
	}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimiterBlocksAfterBurst(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"writes": {RequestsPerMinute: 1, Burst: 1},
	}, nil)
	handler := limiter.Middleware("writes")(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/v1/pools/0/deposits/request", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected first request to succeed, got %d", res.Code)
	}
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be rate limited, got %d", res.Code)
	}
}

func TestRateLimiterSeparatesCallersAndBudgets(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"reads":  {RequestsPerMinute: 1, Burst: 1},
		"writes": {RequestsPerMinute: 1, Burst: 1},
	}, nil)
	reads := limiter.Middleware("reads")(okHandler())
	writes := limiter.Middleware("writes")(okHandler())
	unlimited := limiter.Middleware("other")(okHandler())

	serve := func(h http.Handler, caller crypto.Address) int {
		req := httptest.NewRequest(http.MethodGet, "/v1/pools", nil)
		req = req.WithContext(WithCaller(req.Context(), caller))
		res := httptest.NewRecorder()
		h.ServeHTTP(res, req)
		return res.Code
	}
	a, b := testAddress(1), testAddress(2)
	if serve(reads, a) != http.StatusOK || serve(reads, b) != http.StatusOK {
		t.Fatalf("expected distinct callers to get their own buckets")
	}
	if serve(writes, a) != http.StatusOK {
		t.Fatalf("expected write budget to be separate from reads")
	}
	if serve(reads, a) != http.StatusTooManyRequests {
		t.Fatalf("expected caller a to be limited on reads")
	}
	for i := 0; i < 5; i++ {
		if serve(unlimited, a) != http.StatusOK {
			t.Fatalf("expected unknown budget to pass through")
		}
	}
}

func TestRateLimiterEvictsIdleClients(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{"reads": {RequestsPerMinute: 1, Burst: 1}}, nil)
	now := time.Unix(1_700_000_000, 0)
	limiter.clockNow = func() time.Time { return now }
	handler := limiter.Middleware("reads")(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/v1/pools", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if len(limiter.visitors) != 1 {
		t.Fatalf("expected one tracked client")
	}
	now = now.Add(10 * time.Minute)
	res := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodGet, "/v1/pools", nil)
	req2.RemoteAddr = "10.0.0.9:1234"
	handler.ServeHTTP(res, req2)
	if len(limiter.visitors) != 1 {
		t.Fatalf("expected idle client evicted, have %d", len(limiter.visitors))
	}
}

func TestCORS(t *testing.T) {
	handler := CORS(CORSConfig{AllowedOrigins: []string{"https://ops.example"}})(okHandler())

	req := httptest.NewRequest(http.MethodOptions, "/v1/pools", nil)
	req.Header.Set("Origin", "https://ops.example")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusNoContent {
		t.Fatalf("expected preflight 204, got %d", res.Code)
	}
	if got := res.Header().Get("Access-Control-Allow-Origin"); got != "https://ops.example" {
		t.Fatalf("unexpected allow origin %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/pools", nil)
	req.Header.Set("Origin", "https://evil.example")
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if got := res.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("expected disallowed origin to get no header, got %q", got)
	}
}
