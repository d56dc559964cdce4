package keygate

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/keygatelabs/keygate/rbac"
	"github.com/keygatelabs/keygate/token"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return mr, rdb
}

// memStore is an in-memory IdentityStore for engine tests.
type memStore struct {
	mu        sync.RWMutex
	byChannel map[string]Identity
	byID      map[string]Identity
	saveErr   error
}

func newMemStore() *memStore {
	return &memStore{
		byChannel: make(map[string]Identity),
		byID:      make(map[string]Identity),
	}
}

func (s *memStore) put(identity Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byChannel[identity.Channel] = identity
	s.byID[identity.ID] = identity
}

func (s *memStore) get(id string) (Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	identity, ok := s.byID[id]
	return identity, ok
}

func (s *memStore) FindByChannel(_ context.Context, channel string) (Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	identity, ok := s.byChannel[channel]
	if !ok {
		return Identity{}, ErrIdentityNotFound
	}
	return identity, nil
}

func (s *memStore) FindByID(_ context.Context, id string) (Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	identity, ok := s.byID[id]
	if !ok {
		return Identity{}, ErrIdentityNotFound
	}
	return identity, nil
}

func (s *memStore) Save(_ context.Context, identity Identity) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.put(identity)
	return nil
}

// captureNotifier records the last delivered code per (channel, purpose).
type captureNotifier struct {
	mu    sync.Mutex
	codes map[string]string
	count int
}

func newCaptureNotifier() *captureNotifier {
	return &captureNotifier{codes: make(map[string]string)}
}

func (n *captureNotifier) Deliver(_ context.Context, channel, code string, purpose Purpose) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.codes[channel+"/"+string(purpose)] = code
	n.count++
	return nil
}

func (n *captureNotifier) code(channel string, purpose Purpose) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.codes[channel+"/"+string(purpose)]
}

func (n *captureNotifier) deliveries() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.count
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Token.SigningMethod = string(token.MethodHS256)
	cfg.Token.PrivateKey = []byte("engine-test-secret-engine-test-secret")
	cfg.Audit.Enabled = false
	return cfg
}

func newEngineForTest(t *testing.T, cfg Config) (*Engine, *memStore, *captureNotifier) {
	t.Helper()

	_, rdb := newTestRedis(t)
	store := newMemStore()
	notifier := newCaptureNotifier()

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithIdentityStore(store).
		WithNotifier(notifier).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)

	return engine, store, notifier
}

func seedIdentity(store *memStore, channel string, role rbac.Role) Identity {
	identity := Identity{
		ID:        "id-" + channel,
		Channel:   channel,
		Role:      role,
		Active:    true,
		CreatedAt: time.Now(),
	}
	store.put(identity)
	return identity
}
