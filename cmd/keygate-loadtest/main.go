package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/keygatelabs/keygate"
	"github.com/keygatelabs/keygate/keys"
	"github.com/keygatelabs/keygate/rbac"
	"github.com/keygatelabs/keygate/token"
)

const signingSecret = "keygate-loadtest-signing-secret"

func main() {
	var (
		keyCount    = flag.Int("keys", 1000, "number of keys to seed")
		identities  = flag.Int("identities", 5000, "number of holder identities to seed")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 200000, "operations per phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *keyCount <= 0 || *identities <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "keys, identities, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	store := newMemIdentityStore()

	cfg := keygate.DefaultConfig()
	cfg.Token.SigningMethod = string(token.MethodHS256)
	cfg.Token.PrivateKey = []byte(signingSecret)
	cfg.Audit.Enabled = false

	engine, err := keygate.New().
		WithConfig(cfg).
		WithRedis(client).
		WithIdentityStore(store).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	channels := make([]string, *identities)
	fmt.Printf("seeding %d identities...\n", *identities)
	for i := 0; i < *identities; i++ {
		channel := fmt.Sprintf("holder-%d@example.edu", i)
		channels[i] = channel
		store.put(keygate.Identity{
			ID:        fmt.Sprintf("identity-%d", i),
			Channel:   channel,
			Role:      rbac.Faculty,
			Active:    true,
			CreatedAt: time.Now(),
		})
	}

	keyIDs := make([]string, *keyCount)
	fmt.Printf("seeding %d keys...\n", *keyCount)
	startSeed := time.Now()
	for i := 0; i < *keyCount; i++ {
		id := fmt.Sprintf("K%05d", i)
		keyIDs[i] = id
		if _, err := engine.CreateKey(ctx, rbac.Admin, keys.Key{ID: id, Department: "ops"}); err != nil {
			fmt.Fprintf(os.Stderr, "seed key: %v\n", err)
			os.Exit(1)
		}
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	assignStats := runAssignPhase(ctx, engine, keyIDs, channels, *ops, *concurrency)
	verifyStats := runVerifyPhase(engine, *ops, *concurrency)

	fmt.Println("---- results ----")
	printStats("assign/return", assignStats)
	printStats("token verify", verifyStats)

	snap := engine.MetricsSnapshot()
	fmt.Printf("conflicts=%d assigned=%d returned=%d\n",
		snap.Counters[keygate.MetricKeyConflict],
		snap.Counters[keygate.MetricKeyAssigned],
		snap.Counters[keygate.MetricKeyReturned],
	)
}

// runAssignPhase hammers the compare-and-swap path: workers race to assign
// random keys to random holders and immediately return the ones they win.
// Losses count as failures only when they are not plain conflicts.
func runAssignPhase(ctx context.Context, engine *keygate.Engine, keyIDs, channels []string, ops, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				keyID := keyIDs[r.Intn(len(keyIDs))]
				channel := channels[r.Intn(len(channels))]

				t0 := time.Now()
				_, err := engine.AssignKey(ctx, rbac.Security, keyID, channel, "loadtest", time.Hour)
				if err == nil {
					_, err = engine.ReturnKey(ctx, rbac.Security, keyID)
				}
				d := time.Since(t0)

				if err != nil && !isConflict(err) {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

func runVerifyPhase(engine *keygate.Engine, ops, concurrency int) phaseStats {
	manager, err := token.NewManager(token.Config{
		TTL:           time.Hour,
		SigningMethod: token.MethodHS256,
		PrivateKey:    []byte(signingSecret),
		Issuer:        "keygate",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "token manager: %v\n", err)
		os.Exit(1)
	}

	tokens := make([]string, 64)
	for i := range tokens {
		tok, err := manager.Issue(fmt.Sprintf("identity-%d", i), rbac.Faculty)
		if err != nil {
			fmt.Fprintf(os.Stderr, "issue token: %v\n", err)
			os.Exit(1)
		}
		tokens[i] = tok
	}

	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*6151))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				tok := tokens[r.Intn(len(tokens))]
				t0 := time.Now()
				_, err := engine.VerifyToken(tok)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

func isConflict(err error) bool {
	return errors.Is(err, keys.ErrConflict)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}

// memIdentityStore is a concurrency-safe in-memory IdentityStore. Loadtest
// only; real deployments bring their own persistence.
type memIdentityStore struct {
	mu        sync.RWMutex
	byChannel map[string]keygate.Identity
	byID      map[string]keygate.Identity
}

func newMemIdentityStore() *memIdentityStore {
	return &memIdentityStore{
		byChannel: make(map[string]keygate.Identity),
		byID:      make(map[string]keygate.Identity),
	}
}

func (s *memIdentityStore) put(identity keygate.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byChannel[identity.Channel] = identity
	s.byID[identity.ID] = identity
}

func (s *memIdentityStore) FindByChannel(_ context.Context, channel string) (keygate.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	identity, ok := s.byChannel[channel]
	if !ok {
		return keygate.Identity{}, keygate.ErrIdentityNotFound
	}
	return identity, nil
}

func (s *memIdentityStore) FindByID(_ context.Context, id string) (keygate.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	identity, ok := s.byID[id]
	if !ok {
		return keygate.Identity{}, keygate.ErrIdentityNotFound
	}
	return identity, nil
}

func (s *memIdentityStore) Save(_ context.Context, identity keygate.Identity) error {
	s.put(identity)
	return nil
}
