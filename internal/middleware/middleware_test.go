package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/surplus-market/internal/authz"
	"github.com/iliyamo/surplus-market/internal/config"
	"github.com/iliyamo/surplus-market/internal/model"
	"github.com/iliyamo/surplus-market/internal/utils"
)

func newContext(method, target string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestJWTAuthSetsCaller(t *testing.T) {
	tok, err := utils.NewAccessToken("secret", 7, "seller", 5)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	c, _ := newContext(http.MethodGet, "/v1/me")
	c.Request().Header.Set(echo.HeaderAuthorization, "Bearer "+tok.Token)

	var got authz.Caller
	h := JWTAuth("secret")(func(c echo.Context) error {
		got = authz.CallerFrom(c)
		return nil
	})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.UserID != 7 || got.Kind != model.KindSeller {
		t.Errorf("caller = %+v", got)
	}
}

func TestJWTAuthRejectsMissingAndBadTokens(t *testing.T) {
	h := JWTAuth("secret")(func(echo.Context) error { return nil })

	c, _ := newContext(http.MethodGet, "/v1/me")
	if err := h(c); !errors.Is(err, model.ErrUnauthenticated) {
		t.Errorf("missing header: got %v", err)
	}

	tok, _ := utils.NewAccessToken("other", 7, "seller", 5)
	c, _ = newContext(http.MethodGet, "/v1/me")
	c.Request().Header.Set(echo.HeaderAuthorization, "Bearer "+tok.Token)
	if err := h(c); !errors.Is(err, model.ErrUnauthenticated) {
		t.Errorf("wrong secret: got %v", err)
	}
}

func TestOptionalJWTLeavesAnonymous(t *testing.T) {
	c, _ := newContext(http.MethodGet, "/v1/bundles")
	c.Request().Header.Set(echo.HeaderAuthorization, "Bearer garbage")
	called := false
	h := OptionalJWT("secret")(func(c echo.Context) error {
		called = true
		if authz.CallerFrom(c).Authenticated() {
			t.Error("caller should be anonymous")
		}
		return nil
	})
	if err := h(c); err != nil || !called {
		t.Fatalf("err=%v called=%v", err, called)
	}
}

func TestBuildRateKey(t *testing.T) {
	c, _ := newContext(http.MethodGet, "/v1/bundles")
	c.SetPath("/v1/bundles")
	c.Request().RemoteAddr = "10.0.0.1:1234"
	cfg := config.RateLimitConfig{Prefix: "rl", KeyStrategy: "ip_user_route"}

	if got, want := buildRateKey(cfg, c), "rl:ip:10.0.0.1:user:guest:route:GET /v1/bundles"; got != want {
		t.Errorf("key = %q, want %q", got, want)
	}
	authz.SetCaller(c, authz.Caller{UserID: 3, Kind: model.KindCustomer})
	cfg.KeyStrategy = "user"
	if got, want := buildRateKey(cfg, c), "rl:user:3"; got != want {
		t.Errorf("key = %q, want %q", got, want)
	}
}

func TestCacheKeySeparatesCallersAndQueries(t *testing.T) {
	cfg := config.CacheConfig{Prefix: "cache", KeyStrategy: "route_query"}
	a, _ := newContext(http.MethodGet, "/v1/bundles?title=bread")
	a.SetPath("/v1/bundles")
	b, _ := newContext(http.MethodGet, "/v1/bundles?title=cake")
	b.SetPath("/v1/bundles")
	if cacheKeyFrom(cfg, a) == cacheKeyFrom(cfg, b) {
		t.Error("different queries must not share a key")
	}
	before := cacheKeyFrom(cfg, a)
	authz.SetCaller(a, authz.Caller{UserID: 9})
	if cacheKeyFrom(cfg, a) == before {
		t.Error("different callers must not share a key")
	}
}

func TestPayloadCodec(t *testing.T) {
	hdr := http.Header{"Content-Type": {"application/json"}}
	bs, err := encodePayload(http.StatusOK, hdr, []byte(`{"ok":true}`))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	status, gotHdr, body, ok := decodePayload(bs)
	if !ok || status != http.StatusOK || gotHdr.Get("Content-Type") != "application/json" || string(body) != `{"ok":true}` {
		t.Errorf("decode mismatch: ok=%v status=%d hdr=%v body=%q", ok, status, gotHdr, body)
	}
	if _, _, _, ok := decodePayload([]byte{0, 1}); ok {
		t.Error("short payload must not decode")
	}
}

func TestCaptureWriterStopsAtLimit(t *testing.T) {
	rec := httptest.NewRecorder()
	cw := &captureWriter{ResponseWriter: rec, status: http.StatusOK, limit: 4}
	_, _ = cw.Write([]byte("abc"))
	if !cw.complete() {
		t.Error("3 bytes fit in a 4 byte limit")
	}
	_, _ = cw.Write([]byte("def"))
	if cw.complete() {
		t.Error("6 bytes exceed the limit")
	}
	if rec.Body.String() != "abcdef" {
		t.Errorf("client body = %q", rec.Body.String())
	}
}

func TestDisabledMiddlewaresPassThrough(t *testing.T) {
	c, rec := newContext(http.MethodGet, "/")
	h := func(c echo.Context) error { return c.String(http.StatusOK, "ok") }
	if err := NewTokenBucket(config.RateLimitConfig{}, nil, zerolog.Nop())(h)(c); err != nil {
		t.Fatal(err)
	}
	if err := NewRedisCache(config.CacheConfig{}, nil, zerolog.Nop())(h)(c); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
	var p *CachePurger
	p.Purge(c.Request().Context())
}
