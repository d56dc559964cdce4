package keygate

import (
	"context"
	"errors"
	"testing"

	"github.com/keygatelabs/keygate/rbac"
	"github.com/keygatelabs/keygate/token"
)

func TestBuildRequiresRedisAndStore(t *testing.T) {
	if _, err := New().Build(); err == nil {
		t.Fatal("build without redis succeeded")
	}

	_, rdb := newTestRedis(t)
	if _, err := New().WithRedis(rdb).Build(); err == nil {
		t.Fatal("build without identity store succeeded")
	}
}

func TestBuildRejectsInvalidConfig(t *testing.T) {
	_, rdb := newTestRedis(t)
	cfg := DefaultConfig()
	cfg.OTP.Digits = 0

	_, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithIdentityStore(newMemStore()).
		Build()
	if err == nil {
		t.Fatal("invalid config accepted")
	}
}

func TestBuilderSingleUse(t *testing.T) {
	_, rdb := newTestRedis(t)
	b := New().WithRedis(rdb).WithIdentityStore(newMemStore())

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("first build: %v", err)
	}
	defer engine.Close()

	if _, err := b.Build(); err == nil {
		t.Fatal("second build on the same builder succeeded")
	}
}

func TestBuilderNilArguments(t *testing.T) {
	if _, err := New().WithRedis(nil).Build(); err == nil {
		t.Fatal("nil redis accepted")
	}
	if _, err := New().WithIdentityStore(nil).Build(); err == nil {
		t.Fatal("nil identity store accepted")
	}
	if _, err := New().WithNotifier(nil).Build(); err == nil {
		t.Fatal("nil notifier accepted")
	}
	if _, err := New().WithAuditSink(nil).Build(); err == nil {
		t.Fatal("nil audit sink accepted")
	}
}

func TestBuildGeneratesEd25519Keys(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := newMemStore()
	notifier := newCaptureNotifier()

	// Default config leaves ed25519 keys empty; Build generates ephemeral
	// ones and tokens round-trip within the process.
	engine, err := New().
		WithRedis(rdb).
		WithIdentityStore(store).
		WithNotifier(notifier).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer engine.Close()

	seedIdentity(store, "prof@example.edu", rbac.Faculty)
	ctx := context.Background()

	if _, err := engine.RequestChallenge(ctx, "prof@example.edu", PurposeLogin); err != nil {
		t.Fatalf("request challenge: %v", err)
	}
	result, err := engine.VerifyChallenge(ctx, "prof@example.edu", notifier.code("prof@example.edu", PurposeLogin), PurposeLogin)
	if err != nil {
		t.Fatalf("verify challenge: %v", err)
	}

	claims, err := engine.VerifyToken(result.Token)
	if err != nil {
		t.Fatalf("verify token: %v", err)
	}
	if claims.Role != rbac.Faculty {
		t.Fatalf("claims role = %v, want faculty", claims.Role)
	}
}

func TestBuildCustomRoutes(t *testing.T) {
	_, rdb := newTestRedis(t)

	cfg := testConfig()
	cfg.Routes.Rules = []rbac.RouteRule{
		{Prefix: "/vault", Roles: []rbac.Role{rbac.Admin}},
	}
	cfg.Routes.Public = []string{"/ping"}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithIdentityStore(newMemStore()).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer engine.Close()

	perms := engine.Permissions()
	if !perms.IsPublic("/ping") {
		t.Fatal("/ping not public")
	}
	if perms.IsPublic("/health") {
		t.Fatal("default public list leaked into custom config")
	}
	if !perms.CanAccessRoute(rbac.Admin, "/vault/keys") {
		t.Fatal("admin denied on custom route")
	}
	if perms.CanAccessRoute(rbac.Faculty, "/vault/keys") {
		t.Fatal("faculty allowed on custom route")
	}
}

func TestBuildDisabledRateLimit(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := newMemStore()

	cfg := testConfig()
	cfg.OTP.RequestLimit = 0
	cfg.OTP.RequestWindow = 0

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithIdentityStore(store).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer engine.Close()

	seedIdentity(store, "prof@example.edu", rbac.Faculty)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if _, err := engine.RequestChallenge(ctx, "prof@example.edu", PurposeLogin); err != nil {
			t.Fatalf("request %d with limiting off: %v", i+1, err)
		}
	}
}

func TestRefreshToken(t *testing.T) {
	engine, store, notifier := newEngineForTest(t, testConfig())
	seedIdentity(store, "prof@example.edu", rbac.Faculty)
	ctx := context.Background()

	if _, err := engine.RequestChallenge(ctx, "prof@example.edu", PurposeLogin); err != nil {
		t.Fatalf("request challenge: %v", err)
	}
	result, err := engine.VerifyChallenge(ctx, "prof@example.edu", notifier.code("prof@example.edu", PurposeLogin), PurposeLogin)
	if err != nil {
		t.Fatalf("verify challenge: %v", err)
	}

	refreshed, err := engine.RefreshToken(ctx, result.Token)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	claims, err := engine.VerifyToken(refreshed)
	if err != nil {
		t.Fatalf("verify refreshed: %v", err)
	}
	if claims.IdentityID != result.Identity.ID {
		t.Fatalf("refreshed identity = %q, want %q", claims.IdentityID, result.Identity.ID)
	}

	if _, err := engine.RefreshToken(ctx, "not.a.token"); !errors.Is(err, token.ErrMalformed) {
		t.Fatalf("garbage refresh error = %v, want ErrMalformed", err)
	}
}
