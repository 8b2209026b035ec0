// Command vea-loadtest drives logins and refresh rotations against Redis
// backed stores and reports latency percentiles. It also checks that
// concurrent refreshes of one token produce a single winner.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/umarmf343/veaauth"
	"github.com/umarmf343/veaauth/directory"
	"github.com/umarmf343/veaauth/lockout"
	"github.com/umarmf343/veaauth/password"
	"github.com/umarmf343/veaauth/refresh"
)

const loadPassword = "load-test-pass"

type userState struct {
	email   string
	refresh string
	access  string
	mu      sync.Mutex
}

func main() {
	var (
		users       = flag.Int("users", 2000, "number of accounts to seed")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 20000, "operations per phase (verify + refresh)")
		racers      = flag.Int("racers", 32, "goroutines racing on one refresh token")
		races       = flag.Int("races", 200, "number of refresh races")
		cost        = flag.Int("cost", password.MinCost, "bcrypt cost for seeded accounts")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "vealt:", "redis key prefix")
	)
	flag.Parse()

	if *users <= 0 || *concurrency <= 0 || *ops <= 0 || *racers <= 1 || *races <= 0 {
		fmt.Fprintln(os.Stderr, "users, concurrency, ops and races must be > 0; racers must be > 1")
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

	cfg := veaauth.DefaultConfig()
	cfg.Password.BcryptCost = *cost

	dir := directory.NewMemory()
	engine, err := veaauth.New().
		WithConfig(cfg).
		WithUserDirectory(dir).
		WithRefreshStore(refresh.NewRedisStore(client, refresh.RedisStoreConfig{Prefix: *prefix + "rt:"})).
		WithLockoutStore(lockout.NewRedisStore(client, *prefix+"lock:")).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	hash, err := engine.HashPassword(ctx, loadPassword)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hash: %v\n", err)
		os.Exit(1)
	}

	states := make([]userState, *users)
	fmt.Printf("seeding %d accounts...\n", *users)
	for i := range states {
		email := fmt.Sprintf("user%d@load.vea", i)
		states[i].email = email
		dir.Add(directory.User{
			ID:           fmt.Sprintf("u-%d", i),
			Email:        email,
			Name:         fmt.Sprintf("Load User %d", i),
			PasswordHash: hash,
			Role:         string(veaauth.RoleStudent),
			Status:       directory.StatusActive,
		})
	}

	loginStats := runLoginPhase(ctx, engine, states, *concurrency)
	verifyStats := runVerifyPhase(engine, states, *ops, *concurrency)
	refreshStats := runRefreshPhase(ctx, engine, states, *ops, *concurrency)
	raceStats := runRacePhase(ctx, engine, states, *races, *racers)

	fmt.Println("---- results ----")
	printStats("login", loginStats)
	printStats("verify", verifyStats)
	printStats("refresh", refreshStats)
	fmt.Printf("race: races=%d racers=%d single_winner=%d violations=%d\n",
		*races, *racers, raceStats.ok, raceStats.violations)

	if loginStats.failures > 0 || refreshStats.failures > 0 || raceStats.violations > 0 {
		os.Exit(1)
	}
}

func runLoginPhase(ctx context.Context, engine *veaauth.Engine, states []userState, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, len(states))
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= len(states) {
					return
				}
				t0 := time.Now()
				s, err := engine.Login(ctx, states[i].email, loadPassword)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				} else {
					states[i].refresh = s.Tokens.RefreshToken
					states[i].access = s.Tokens.AccessToken
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

func runVerifyPhase(engine *veaauth.Engine, states []userState, ops, concurrency int) phaseStats {
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
				state := &states[r.Intn(len(states))]
				state.mu.Lock()
				token := state.access
				state.mu.Unlock()

				t0 := time.Now()
				_, err := engine.VerifyAccessToken(token)
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
	return computeStats(time.Since(start), latencies, failures)
}

func runRefreshPhase(ctx context.Context, engine *veaauth.Engine, states []userState, ops, concurrency int) phaseStats {
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
				state := &states[r.Intn(len(states))]

				state.mu.Lock()
				t0 := time.Now()
				s, err := engine.RefreshSession(ctx, state.refresh)
				d := time.Since(t0)
				if err == nil {
					state.refresh = s.Tokens.RefreshToken
					state.access = s.Tokens.AccessToken
				} else {
					atomic.AddInt64(&failures, 1)
				}
				state.mu.Unlock()

				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type raceStats struct {
	ok         int
	violations int
}

// runRacePhase presents the same refresh token from many goroutines at once.
// Each race must have exactly one winner; every loser must see reuse.
func runRacePhase(ctx context.Context, engine *veaauth.Engine, states []userState, races, racers int) raceStats {
	var out raceStats
	for i := 0; i < races; i++ {
		state := &states[i%len(states)]
		s, err := engine.Login(ctx, state.email, loadPassword)
		if err != nil {
			out.violations++
			continue
		}

		var (
			wg      sync.WaitGroup
			winners int64
			odd     int64
			gate    = make(chan struct{})
		)
		for j := 0; j < racers; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-gate
				_, err := engine.RefreshSession(ctx, s.Tokens.RefreshToken)
				switch {
				case err == nil:
					atomic.AddInt64(&winners, 1)
				case !errors.Is(err, veaauth.ErrRefreshTokenReused):
					atomic.AddInt64(&odd, 1)
				}
			}()
		}
		close(gate)
		wg.Wait()

		if winners == 1 && odd == 0 {
			out.ok++
		} else {
			out.violations++
			fmt.Fprintf(os.Stderr, "race %d: winners=%d unexpected_errors=%d\n", i, winners, odd)
		}
	}
	return out
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
