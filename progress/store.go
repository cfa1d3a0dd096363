package progress

import (
	"log/slog"
	"sync"
	"time"
)

// Well-known status values. Update accepts any string so callers can
// report finer-grained stages, but these cover the normal lifecycle.
const (
	StatusQueued       = "queued"
	StatusFetchingInfo = "fetching metadata"
	StatusDownloading  = "downloading"
	StatusDownloaded   = "downloaded"
	StatusTranscribing = "transcribing"
	StatusDone         = "done"
	StatusFailed       = "failed"
)

// Record is the progress snapshot for a single job key.
type Record struct {
	Status    string    `json:"status"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Config controls record retention and sweep cadence.
type Config struct {
	// TTL is how long a record survives after its last update.
	TTL time.Duration

	// SweepInterval is how often expired records are removed.
	SweepInterval time.Duration
}

// DefaultConfig matches the service's 1-hour retention policy.
func DefaultConfig() Config {
	return Config{
		TTL:           time.Hour,
		SweepInterval: time.Hour,
	}
}

// Store maps job keys to progress records. All access goes through one
// mutex; a background sweep evicts records older than the TTL. The zero
// value is not usable, construct with New.
type Store struct {
	config Config
	now    func() time.Time

	mu      sync.Mutex
	records map[string]Record
	subs    map[string][]chan Record

	running bool
	stop    chan struct{}
	done    chan struct{}
}

// New creates a store. The sweep does not run until Start is called.
func New(cfg Config) *Store {
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Hour
	}

	return &Store{
		config:  cfg,
		now:     time.Now,
		records: make(map[string]Record),
		subs:    make(map[string][]chan Record),
	}
}

// Update overwrites the record for key. Last write wins; concurrent
// updates to the same key are ordered by arrival at the lock.
func (s *Store) Update(key, status, details string) {
	rec := Record{
		Status:    status,
		Details:   details,
		Timestamp: s.now(),
	}

	s.mu.Lock()
	s.records[key] = rec
	subs := s.subs[key]
	for _, ch := range subs {
		select {
		case ch <- rec:
		default:
			// Subscriber is not keeping up; drop rather than
			// block a request thread.
		}
	}
	s.mu.Unlock()
}

// Get returns the current record for key, or false when none exists.
func (s *Store) Get(key string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	return rec, ok
}

// Subscribe returns a channel receiving every subsequent update for key.
// The channel is buffered; slow consumers miss updates instead of
// blocking writers. Callers must Unsubscribe when done.
func (s *Store) Subscribe(key string) chan Record {
	ch := make(chan Record, 8)

	s.mu.Lock()
	s.subs[key] = append(s.subs[key], ch)
	s.mu.Unlock()

	return ch
}

// Unsubscribe removes a channel registered with Subscribe and closes it.
func (s *Store) Unsubscribe(key string, ch chan Record) {
	s.mu.Lock()
	subs := s.subs[key]
	for i, c := range subs {
		if c == ch {
			subs = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(subs) == 0 {
		delete(s.subs, key)
	} else {
		s.subs[key] = subs
	}
	s.mu.Unlock()

	close(ch)
}

// Start begins the recurring sweep. Calling Start on a running store is
// a no-op.
func (s *Store) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})

	go s.sweepLoop(s.stop, s.done)

	slog.Info("Progress sweep started",
		"ttl", s.config.TTL,
		"interval", s.config.SweepInterval)
}

// Stop cancels the sweep and waits for it to exit. Safe to call when
// not running and safe to call repeatedly.
func (s *Store) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	stop, done := s.stop, s.done
	s.mu.Unlock()

	close(stop)
	<-done

	slog.Info("Progress sweep stopped")
}

func (s *Store) sweepLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			removed := s.removeExpired()
			slog.Debug("Progress sweep complete", "removed", removed)
		}
	}
}

// removeExpired deletes every record older than the TTL and reports how
// many were removed. Lock hold time is bounded by the record count.
func (s *Store) removeExpired() int {
	cutoff := s.now().Add(-s.config.TTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, rec := range s.records {
		if rec.Timestamp.Before(cutoff) {
			delete(s.records, key)
			removed++
		}
	}
	return removed
}
