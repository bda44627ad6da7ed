package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	campusAuth "github.com/MrEthical07/campusAuth"
	"github.com/MrEthical07/campusAuth/model"
	"github.com/MrEthical07/campusAuth/password"
	"github.com/MrEthical07/campusAuth/store"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const loadPassword = "Load-Test-Pass-1"

type sessionState struct {
	access  string
	refresh string
	mu      sync.Mutex
}

func main() {
	var (
		users       = flag.Int("users", 2000, "number of student accounts to seed and log in")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 50000, "operations per phase (validate + refresh)")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "campus-load", "redis key prefix")
	)
	flag.Parse()

	if *users <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "users, concurrency, and ops must be > 0")
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

	db, err := store.OpenSQLite(ctx, ":memory:")
	if err != nil {
		fmt.Fprintf(os.Stderr, "open sqlite: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.Migrate(ctx, store.Migrations()); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}

	cfg := campusAuth.DefaultConfig()
	cfg.JWT.PrivateKey = []byte("campusauth-loadtest-signing-key!")
	cfg.Password.BcryptCost = 4
	cfg.Redis.Prefix = *prefix
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true

	repo := store.NewUsers(db)
	engine, err := campusAuth.New().
		WithConfig(cfg).
		WithUsers(repo).
		WithRelations(store.NewRelations(db)).
		WithRedis(client).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	fmt.Printf("seeding %d users...\n", *users)
	startSeed := time.Now()
	states, err := seed(ctx, engine, repo, *users)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	validateStats := runPhase(states, *ops, *concurrency, 7919, func(s *sessionState) error {
		s.mu.Lock()
		token := s.access
		s.mu.Unlock()
		_, err := engine.ValidateAccess(ctx, token)
		return err
	})
	refreshStats := runPhase(states, *ops, *concurrency, 6151, func(s *sessionState) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		res, err := engine.Refresh(ctx, s.refresh, "127.0.0.1")
		if err != nil {
			return err
		}
		s.access, s.refresh = res.AccessToken, res.RefreshToken
		return nil
	})

	fmt.Println("---- results ----")
	printStats("validate", validateStats)
	printStats("refresh", refreshStats)

	snap := engine.MetricsSnapshot()
	fmt.Printf("engine: refresh_success=%d replay_detected=%d\n",
		snap.Counters[campusAuth.MetricRefreshSuccess],
		snap.Counters[campusAuth.MetricRefreshReplayDetected],
	)
}

// seed stores one student per slot and logs each in once.
func seed(ctx context.Context, engine *campusAuth.Engine, repo *store.Users, n int) ([]*sessionState, error) {
	h, err := password.NewBcrypt(4)
	if err != nil {
		return nil, err
	}
	hash, err := h.Hash(loadPassword)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	states := make([]*sessionState, n)
	for i := 0; i < n; i++ {
		username := fmt.Sprintf("student-%d", i)
		u := &model.User{
			ID:           fmt.Sprintf("u-%d", i),
			Username:     username,
			Email:        username + "@load.test",
			PasswordHash: hash,
			Role:         model.RoleStudent,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := repo.Save(ctx, u); err != nil {
			return nil, fmt.Errorf("save %s: %w", username, err)
		}
		res, err := engine.LoginWithPassword(ctx, username, loadPassword, "127.0.0.1")
		if err != nil {
			return nil, fmt.Errorf("login %s: %w", username, err)
		}
		states[i] = &sessionState{access: res.AccessToken, refresh: res.RefreshToken}
	}
	return states, nil
}

func runPhase(states []*sessionState, ops, concurrency int, seedStep int64, op func(*sessionState) error) phaseStats {
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
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*seedStep))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				state := states[r.Intn(len(states))]
				t0 := time.Now()
				err := op(state)
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
