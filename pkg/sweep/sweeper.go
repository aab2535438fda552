// Package sweep implements the background daemon that drains per-swap
// subaddresses into their recorded destinations once funds unlock.
package sweep

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"xmrbridge/pkg/ledger"
	"xmrbridge/pkg/monero"
)

// ErrBudgetExhausted is returned by Run once the shared error budget is spent.
// Persistent failures suggest systemic RPC breakage; failing fast beats
// retrying forever.
var ErrBudgetExhausted = errors.New("sweep error budget exhausted")

// Wallet is the Monero wallet surface the sweeper needs. The monero.Client
// implements it.
type Wallet interface {
	GetBalance(ctx context.Context, subaddressIndex uint32) (*monero.SubaddressBalance, error)
	SweepAll(ctx context.Context, subaddressIndex uint32, targetAddress string) ([]string, error)
}

// Config tunes the sweep loop.
type Config struct {
	// RetryInterval is the minimum time between sweep attempts for one
	// subaddress index.
	RetryInterval time.Duration

	// ScanInterval is the sleep between full scans of the stores.
	ScanInterval time.Duration

	// MaxErrors is the shared error budget across all files and cycles.
	MaxErrors int
}

// Sweeper periodically scans settlement ledgers and executes sweeps. All
// mutable scan state lives on the instance; entries within one cycle are
// processed concurrently.
type Sweeper struct {
	cfg    Config
	wallet Wallet
	stores []ledger.Store
	logger *slog.Logger

	errorCount atomic.Int64

	// mu guards attempts and inflight. Together they prevent both rapid
	// re-sweeps and two concurrent sweeps of the same index.
	mu       sync.Mutex
	attempts map[uint32]time.Time
	inflight map[uint32]bool

	now func() time.Time
}

// New creates a sweeper over the given ledger stores.
func New(cfg Config, wallet Wallet, stores []ledger.Store, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		cfg:      cfg,
		wallet:   wallet,
		stores:   stores,
		logger:   logger,
		attempts: make(map[uint32]time.Time),
		inflight: make(map[uint32]bool),
		now:      time.Now,
	}
}

// Run scans the stores until the context is cancelled or the error budget is
// exhausted.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.ScanInterval)
	defer ticker.Stop()

	for {
		s.Scan(ctx)
		if s.exhausted() {
			s.logger.Error("terminating sweep loop",
				"errors", s.errorCount.Load(), "budget", s.cfg.MaxErrors)
			return ErrBudgetExhausted
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Scan processes every eligible record in every store once. Entries are
// handled concurrently; per-entry failures are counted and swallowed so the
// record stays for the next cycle.
func (s *Sweeper) Scan(ctx context.Context) {
	for _, store := range s.stores {
		entries, err := store.List()
		if err != nil {
			s.recordError("failed to list ledger", err)
			continue
		}
		if len(entries) == 0 {
			continue
		}

		s.logger.Info("processing ledger entries", "count", len(entries))

		var wg sync.WaitGroup
		for _, entry := range entries {
			if s.exhausted() {
				break
			}
			wg.Add(1)
			go func(store ledger.Store, entry ledger.Entry) {
				defer wg.Done()
				s.processEntry(ctx, store, entry)
			}(store, entry)
		}
		wg.Wait()
	}
}

// processEntry sweeps one record's subaddress if its funds are unlocked and
// enough time has passed since the last attempt.
func (s *Sweeper) processEntry(ctx context.Context, store ledger.Store, entry ledger.Entry) {
	index := entry.Record.SubaddressIndex

	if !s.beginAttempt(index) {
		s.logger.Info("skipping sweep due to recent attempt", "subaddress_index", index)
		return
	}
	defer s.finishAttempt(index)

	balance, err := s.wallet.GetBalance(ctx, index)
	if err != nil {
		s.recordError("failed to check unlocked balance", err, "subaddress_index", index)
		return
	}

	if balance.UnlockedBalance == 0 {
		s.logger.Info("funds still locked",
			"subaddress_index", index,
			"blocks_to_unlock", balance.BlocksToUnlock)
		return
	}

	s.logger.Info("sweeping subaddress",
		"subaddress_index", index,
		"target", entry.Record.TargetAddress)

	txHashes, err := s.wallet.SweepAll(ctx, index, entry.Record.TargetAddress)
	if err != nil {
		s.recordError("sweep failed", err, "subaddress_index", index)
		return
	}
	for _, hash := range txHashes {
		s.logger.Info("sweep transaction sent", "subaddress_index", index, "tx_hash", hash)
	}

	if err := store.Delete(entry.ID); err != nil {
		s.recordError("failed to delete swept record", err, "record", entry.ID)
	}
}

// beginAttempt reserves the subaddress index for this goroutine. It fails when
// a sweep of the index is in flight or was attempted within the retry
// interval; on success the attempt timestamp is taken immediately so a
// concurrent caller cannot start a duplicate.
func (s *Sweeper) beginAttempt(index uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inflight[index] {
		return false
	}
	now := s.now()
	if last, ok := s.attempts[index]; ok && now.Sub(last) < s.cfg.RetryInterval {
		return false
	}
	s.inflight[index] = true
	s.attempts[index] = now
	return true
}

func (s *Sweeper) finishAttempt(index uint32) {
	s.mu.Lock()
	delete(s.inflight, index)
	s.mu.Unlock()
}

func (s *Sweeper) recordError(msg string, err error, args ...any) {
	count := s.errorCount.Add(1)
	args = append(args, "error", err, "error_count", count)
	s.logger.Error(msg, args...)
}

func (s *Sweeper) exhausted() bool {
	return s.errorCount.Load() >= int64(s.cfg.MaxErrors)
}
