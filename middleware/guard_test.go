package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/keygatelabs/keygate"
	"github.com/keygatelabs/keygate/middleware"
	"github.com/keygatelabs/keygate/rbac"
	"github.com/keygatelabs/keygate/token"
)

type memIdentityStore struct{}

func (memIdentityStore) FindByChannel(context.Context, string) (keygate.Identity, error) {
	return keygate.Identity{}, keygate.ErrIdentityNotFound
}

func (memIdentityStore) FindByID(context.Context, string) (keygate.Identity, error) {
	return keygate.Identity{}, keygate.ErrIdentityNotFound
}

func (memIdentityStore) Save(context.Context, keygate.Identity) error { return nil }

const testSecret = "guard-test-secret-guard-test-secret"

func newTestEngine(t *testing.T) *keygate.Engine {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := keygate.DefaultConfig()
	cfg.Token.SigningMethod = string(token.MethodHS256)
	cfg.Token.PrivateKey = []byte(testSecret)

	engine, err := keygate.New().
		WithConfig(cfg).
		WithRedis(client).
		WithIdentityStore(memIdentityStore{}).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)

	return engine
}

func issueToken(t *testing.T, role rbac.Role) string {
	t.Helper()

	cfg := keygate.DefaultConfig()
	manager, err := token.NewManager(token.Config{
		TTL:           cfg.Token.TTL,
		SigningMethod: token.MethodHS256,
		PrivateKey:    []byte(testSecret),
		Issuer:        cfg.Token.Issuer,
	})
	if err != nil {
		t.Fatalf("token manager: %v", err)
	}

	tok, err := manager.Issue("identity-1", role)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return tok
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestGuardPublicPathBypass(t *testing.T) {
	engine := newTestEngine(t)
	handler := middleware.Guard(engine)(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("public path status = %d, want 200", rec.Code)
	}
}

func TestGuardRejectsMissingToken(t *testing.T) {
	engine := newTestEngine(t)
	handler := middleware.Guard(engine)(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/keys", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing token status = %d, want 401", rec.Code)
	}
}

func TestGuardRejectsGarbageToken(t *testing.T) {
	engine := newTestEngine(t)
	handler := middleware.Guard(engine)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/keys", nil)
	req.Header.Set("Authorization", "Bearer not.a.token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("garbage token status = %d, want 401", rec.Code)
	}
}

func TestGuardInjectsClaims(t *testing.T) {
	engine := newTestEngine(t)

	var got *token.Claims
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = middleware.ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	handler := middleware.Guard(engine)(inner)

	req := httptest.NewRequest(http.MethodGet, "/keys", nil)
	req.Header.Set("Authorization", "Bearer "+issueToken(t, rbac.Faculty))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("authorized status = %d, want 200", rec.Code)
	}
	if got == nil || got.IdentityID != "identity-1" || got.Role != rbac.Faculty {
		t.Fatalf("claims not injected: %+v", got)
	}
}

func TestGuardForbidsWrongRole(t *testing.T) {
	engine := newTestEngine(t)
	handler := middleware.Guard(engine)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/admin/settings", nil)
	req.Header.Set("Authorization", "Bearer "+issueToken(t, rbac.Faculty))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("wrong role status = %d, want 403", rec.Code)
	}
}

func TestGuardMostSpecificPrefixWins(t *testing.T) {
	engine := newTestEngine(t)
	handler := middleware.Guard(engine)(okHandler())

	// Security may reach /security but not /security/incharge.
	req := httptest.NewRequest(http.MethodGet, "/security/incharge/board", nil)
	req.Header.Set("Authorization", "Bearer "+issueToken(t, rbac.Security))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("incharge path for security status = %d, want 403", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/security/board", nil)
	req.Header.Set("Authorization", "Bearer "+issueToken(t, rbac.Security))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("security path status = %d, want 200", rec.Code)
	}
}

func TestRequireCapability(t *testing.T) {
	engine := newTestEngine(t)
	handler := middleware.Guard(engine)(
		middleware.RequireCapability(engine, rbac.CapKeysManage)(okHandler()),
	)

	req := httptest.NewRequest(http.MethodGet, "/keys/create", nil)
	req.Header.Set("Authorization", "Bearer "+issueToken(t, rbac.Faculty))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("faculty keys:manage status = %d, want 403", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/keys/create", nil)
	req.Header.Set("Authorization", "Bearer "+issueToken(t, rbac.Admin))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("admin keys:manage status = %d, want 200", rec.Code)
	}
}
