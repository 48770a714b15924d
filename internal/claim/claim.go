// Package claim hands out bounded batches of unprocessed documents to workers.
package claim

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"

	"corpora/internal/config"
	"corpora/internal/corpus"
	"corpora/internal/logging"
	"corpora/internal/metrics"
	"corpora/internal/services"
	"corpora/internal/subset"
)

// Tracker is the subset surface the claimer needs.
type Tracker interface {
	ClaimBatch(ctx context.Context, name string, maxSize int, owner subset.Owner) (subset.Claim, error)
	Release(ctx context.Context, name string, ids []corpus.DocumentID) (int, error)
}

// Claimer claims batches on behalf of one worker.
type Claimer struct {
	tracker   Tracker
	batchSize int
	timeout   time.Duration
	policy    string
	owner     subset.Owner
	logger    *slog.Logger
	metrics   *metrics.Registry
}

// New builds a claimer for worker using pipeline settings from cfg.
func New(cfg *config.Config, tracker Tracker, worker string, logger *slog.Logger, reg *metrics.Registry) *Claimer {
	if logger == nil {
		logger = logging.NewNop()
	}
	host, _ := os.Hostname()
	return &Claimer{
		tracker:   tracker,
		batchSize: cfg.Pipeline.BatchSize,
		timeout:   cfg.ClaimTimeout(),
		policy:    cfg.Pipeline.ReleasePolicy,
		owner:     subset.Owner{Worker: worker, Host: host, PID: os.Getpid()},
		logger:    logging.NewComponentLogger(logger, "claim"),
		metrics:   reg,
	}
}

// Owner returns the identity recorded on claims.
func (c *Claimer) Owner() subset.Owner {
	return c.owner
}

// Claim atomically takes up to the configured batch size of unprocessed ids.
// A returned batch may be empty; callers must Close every non-nil batch.
func (c *Claimer) Claim(ctx context.Context, name string) (*Batch, error) {
	claimCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		claimCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	start := time.Now()
	claimed, err := c.tracker.ClaimBatch(claimCtx, name, c.batchSize, c.owner)
	c.metrics.ObserveClaim(name, len(claimed.IDs), time.Since(start), err)
	if err != nil {
		if errors.Is(claimCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, services.ErrTimeout) {
			err = services.Wrap(services.ErrTimeout, "claim", "claim batch", name, err)
		}
		return nil, err
	}
	if !claimed.Empty() {
		c.logger.Debug("claimed batch",
			logging.String(logging.FieldSubset, name),
			logging.String(logging.FieldWorker, c.owner.Worker),
			logging.Int("count", len(claimed.IDs)),
			logging.String("token", claimed.Token),
		)
	}
	return &Batch{
		claimer: c,
		subset:  name,
		token:   claimed.Token,
		ids:     claimed.IDs,
		started: make(map[string]struct{}, len(claimed.IDs)),
	}, nil
}

// Batch is a set of ids owned by one worker until closed.
type Batch struct {
	claimer *Claimer
	subset  string
	token   string
	ids     []corpus.DocumentID

	mu      sync.Mutex
	started map[string]struct{}
	closed  bool
}

// Subset returns the subset the batch was claimed from.
func (b *Batch) Subset() string {
	return b.subset
}

// Token returns the claim token.
func (b *Batch) Token() string {
	return b.token
}

// IDs returns the claimed ids in key order.
func (b *Batch) IDs() []corpus.DocumentID {
	return b.ids
}

// Len returns the number of claimed ids.
func (b *Batch) Len() int {
	return len(b.ids)
}

// Empty reports whether nothing was claimed.
func (b *Batch) Empty() bool {
	return len(b.ids) == 0
}

// Start records that processing of id has begun. Started ids are never
// released by Close.
func (b *Batch) Start(id corpus.DocumentID) {
	b.mu.Lock()
	b.started[id.Key()] = struct{}{}
	b.mu.Unlock()
}

// Unstarted returns ids that were never started.
func (b *Batch) Unstarted() []corpus.DocumentID {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []corpus.DocumentID
	for _, id := range b.ids {
		if _, ok := b.started[id.Key()]; !ok {
			out = append(out, id)
		}
	}
	return out
}

// Close ends ownership. Under the release policy, unstarted ids go back to
// unprocessed; under the keep policy they stay in_process for stale
// reclamation. Close is safe to call more than once.
func (b *Batch) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	c := b.claimer
	if c.policy == config.ReleasePolicyKeep {
		return nil
	}
	pending := b.Unstarted()
	if len(pending) == 0 {
		return nil
	}
	// Release must outlive the worker context that may have just expired.
	n, err := c.tracker.Release(context.WithoutCancel(ctx), b.subset, pending)
	if err != nil {
		return err
	}
	c.metrics.ObserveRelease(b.subset, n)
	c.logger.Info("released unstarted documents",
		logging.String(logging.FieldSubset, b.subset),
		logging.String(logging.FieldWorker, c.owner.Worker),
		logging.Int("count", n),
	)
	return nil
}
