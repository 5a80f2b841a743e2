// Package idgen mints human-readable issue IDs of the form
// {scope}_{YYYYMMDD}_{seq}, collision-free under concurrent callers sharing
// the same counter file.
package idgen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"civicspotter/store"
)

const (
	// DefaultLockTimeout bounds how long a caller waits for the counter lock.
	DefaultLockTimeout = 5 * time.Second

	// maxAttempts bounds the defensive collision retry loop.
	maxAttempts = 1000

	lockPollInterval = 50 * time.Millisecond
	dateLayout       = "20060102"
)

var (
	// ErrLockUnavailable indicates the counter lock could not be acquired
	// within the timeout.
	ErrLockUnavailable = errors.New("issue counter lock unavailable")
	// ErrIDExhausted indicates no unique ID was found within the retry bound.
	ErrIDExhausted = errors.New("failed to generate unique issue ID after 1000 attempts")
)

// counterState is the persisted counter, reset when the stored date differs
// from the current one.
type counterState struct {
	Date    string `json:"date"`
	Counter int    `json:"counter"`
}

// Generator produces issue IDs from a file-persisted daily counter. The
// counter file is guarded by an OS advisory lock so that generator instances
// in other processes sharing the same file serialize their
// read-modify-write-persist sequences.
type Generator struct {
	counterFile string
	mu          sync.Mutex // serializes goroutines sharing this instance
	lock        *flock.Flock
	lockTimeout time.Duration
	active      store.Store // optional, used for the defensive existence probe
	now         func() time.Time
}

// Option configures a Generator.
type Option func(*Generator)

// WithLockTimeout overrides the default lock acquisition timeout.
func WithLockTimeout(d time.Duration) Option {
	return func(g *Generator) { g.lockTimeout = d }
}

// WithActiveSet enables the defensive check that a candidate ID is not
// already present in the active partition of s.
func WithActiveSet(s store.Store) Option {
	return func(g *Generator) { g.active = s }
}

// WithClock overrides the time source. Used by tests to simulate rollover.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// New returns a Generator persisting its counter at counterFile.
func New(counterFile string, opts ...Option) *Generator {
	g := &Generator{
		counterFile: counterFile,
		lock:        flock.New(counterFile + ".lock"),
		lockTimeout: DefaultLockTimeout,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// GenerateID mints the next ID for the given scope key (typically the city).
// The whole load-increment-persist sequence runs under the counter lock; no
// two concurrent calls observe and persist the same counter value.
func (g *Generator) GenerateID(ctx context.Context, scopeKey string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	lockCtx, cancel := context.WithTimeout(ctx, g.lockTimeout)
	defer cancel()

	locked, err := g.lock.TryLockContext(lockCtx, lockPollInterval)
	if err != nil || !locked {
		return "", ErrLockUnavailable
	}
	defer g.lock.Unlock()

	date := g.now().Format(dateLayout)
	state, err := g.loadCounter()
	if err != nil {
		return "", err
	}
	if state.Date != date {
		// Daily rollover.
		state = counterState{Date: date, Counter: 0}
	}

	scope := normalizeScope(scopeKey)
	for i := 0; i < maxAttempts; i++ {
		state.Counter++
		id := fmt.Sprintf("%s_%s_%03d", scope, date, state.Counter)
		taken, err := g.idExists(ctx, id)
		if err != nil {
			return "", err
		}
		if taken {
			continue
		}
		if err := g.saveCounter(state); err != nil {
			return "", err
		}
		return id, nil
	}
	return "", ErrIDExhausted
}

func (g *Generator) loadCounter() (counterState, error) {
	data, err := os.ReadFile(g.counterFile)
	if err != nil {
		if os.IsNotExist(err) {
			return counterState{}, nil
		}
		return counterState{}, fmt.Errorf("loading issue counter: %w", err)
	}
	var state counterState
	if err := json.Unmarshal(data, &state); err != nil {
		return counterState{}, fmt.Errorf("decoding issue counter: %w", err)
	}
	return state, nil
}

func (g *Generator) saveCounter(state counterState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding issue counter: %w", err)
	}
	if err := os.WriteFile(g.counterFile, data, 0o644); err != nil {
		return fmt.Errorf("saving issue counter: %w", err)
	}
	return nil
}

func (g *Generator) idExists(ctx context.Context, id string) (bool, error) {
	if g.active == nil {
		return false, nil
	}
	_, err := g.active.Get(ctx, store.PartitionActive, id)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	return false, err
}

// normalizeScope lower-cases the scope key and strips whitespace so IDs stay
// URL-safe.
func normalizeScope(scope string) string {
	scope = strings.ToLower(strings.TrimSpace(scope))
	return strings.ReplaceAll(scope, " ", "")
}
