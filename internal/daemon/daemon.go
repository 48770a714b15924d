package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/robfig/cron/v3"

	"corpora/internal/config"
	"corpora/internal/logging"
	"corpora/internal/metrics"
	"corpora/internal/pipeline"
	"corpora/internal/pipelinedef"
)

// Daemon runs scheduled pipeline passes and enforces single-instance execution.
type Daemon struct {
	cfg     *config.Config
	engine  *pipelinedef.Engine
	logger  *slog.Logger
	metrics *metrics.Registry

	lockPath string
	lock     *flock.Flock

	cron    *cron.Cron
	entry   cron.EntryID
	server  *http.Server
	addr    string
	running atomic.Bool
	ticking atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu         sync.Mutex
	lastRun    time.Time
	lastReport pipeline.Report
	lastErr    error
	ticks      int
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	LockFilePath string
	MetricsAddr  string
	Ticks        int
	LastRun      time.Time
	NextRun      time.Time
	LastReport   pipeline.Report
	LastError    string
}

// New constructs a daemon around an assembled engine.
func New(cfg *config.Config, engine *pipelinedef.Engine, logger *slog.Logger, reg *metrics.Registry) (*Daemon, error) {
	if cfg == nil || engine == nil {
		return nil, errors.New("daemon requires config and engine")
	}
	if _, err := cron.ParseStandard(cfg.Daemon.Schedule); err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", cfg.Daemon.Schedule, err)
	}
	lockPath := cfg.LockPath()
	return &Daemon{
		cfg:      cfg,
		engine:   engine,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		metrics:  reg,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the lock, starts the metrics endpoint and schedules runs.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another corpora daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.startMetrics(); err != nil {
		d.cancel()
		_ = d.lock.Unlock()
		return err
	}

	d.cron = cron.New()
	entry, err := d.cron.AddFunc(d.cfg.Daemon.Schedule, d.tick)
	if err != nil {
		d.stopMetrics()
		d.cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("schedule runs: %w", err)
	}
	d.entry = entry
	d.cron.Start()

	d.running.Store(true)
	d.logger.Info("corpora daemon started",
		logging.String("lock", d.lockPath),
		logging.String("schedule", d.cfg.Daemon.Schedule),
		logging.String("metrics", d.addr),
	)
	return nil
}

// Stop cancels in-flight runs, waits for them and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
	}
	if d.cron != nil {
		<-d.cron.Stop().Done()
	}
	d.stopMetrics()
	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("corpora daemon stopped")
}

// Close stops the daemon if it is still running.
func (d *Daemon) Close() {
	d.Stop()
}

func (d *Daemon) startMetrics() error {
	bind := d.cfg.Daemon.MetricsBind
	if bind == "" || d.metrics == nil {
		return nil
	}
	ln, err := net.Listen("tcp", bind)
	if err != nil {
		return fmt.Errorf("listen metrics %s: %w", bind, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", d.metrics.Handler())
	d.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	d.addr = ln.Addr().String()
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.logger.Error("metrics server failed", logging.Error(err))
		}
	}()
	return nil
}

func (d *Daemon) stopMetrics() {
	if d.server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = d.server.Shutdown(shutdownCtx)
	d.server = nil
}

// tick is the cron callback. Overlapping ticks are skipped.
func (d *Daemon) tick() {
	if !d.ticking.CompareAndSwap(false, true) {
		d.logger.Debug("previous run still active; skipping tick")
		return
	}
	defer d.ticking.Store(false)
	d.wg.Add(1)
	defer d.wg.Done()
	_, _ = d.RunOnce(d.ctx)
}

// RunOnce reclaims stale claims and drains every configured subset once.
func (d *Daemon) RunOnce(ctx context.Context) (pipeline.Report, error) {
	started := time.Now()
	tracker := d.engine.Tracker

	if stale := d.cfg.StaleAfter(); stale > 0 {
		n, err := tracker.ReclaimStale(ctx, "", started.Add(-stale))
		if err != nil {
			d.logger.Warn("reclaim stale claims failed; stuck documents may remain",
				logging.Error(err),
				logging.String(logging.FieldEventType, "reclaim_failed"),
				logging.String(logging.FieldErrorHint, "check database access"),
			)
		} else if n > 0 {
			d.metrics.ObserveReclaimed(n)
			d.logger.Info("reclaimed stale claims", logging.Int("count", n))
		}
	}

	names, err := d.subsets(ctx)
	if err != nil {
		d.record(started, pipeline.Report{}, err)
		return pipeline.Report{}, err
	}
	var (
		total    pipeline.Report
		firstErr error
	)
	for _, name := range names {
		report, err := d.engine.Runner.RunWorkers(ctx, name, d.cfg.Pipeline.Workers)
		total.Add(report)
		if counts, statusErr := tracker.Status(ctx, name); statusErr == nil {
			d.metrics.SetSubsetRows(name, counts.Unprocessed, counts.InProcess, counts.Processed, counts.Failed)
		}
		if err != nil {
			d.logger.Error("subset run failed",
				logging.String(logging.FieldSubset, name),
				logging.Error(err),
				logging.String(logging.FieldEventType, "subset_run_failed"),
			)
			if firstErr == nil {
				firstErr = err
			}
			if ctx.Err() != nil {
				break
			}
		}
	}
	total.Elapsed = time.Since(started)
	d.record(started, total, firstErr)
	d.logger.Info("scheduled run complete",
		logging.Int("subsets", len(names)),
		logging.Int("processed", total.Processed),
		logging.Int("skipped", total.Skipped),
		logging.Int("failed", total.Failed),
		logging.Int("superseded", total.Superseded),
		logging.Duration("elapsed", total.Elapsed),
	)
	return total, firstErr
}

func (d *Daemon) subsets(ctx context.Context) ([]string, error) {
	if len(d.cfg.Daemon.Subsets) > 0 {
		return d.cfg.Daemon.Subsets, nil
	}
	all, err := d.engine.Tracker.List(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(all))
	for _, s := range all {
		names = append(names, s.Name)
	}
	return names, nil
}

func (d *Daemon) record(at time.Time, report pipeline.Report, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ticks++
	d.lastRun = at
	d.lastReport = report
	d.lastErr = err
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	status := Status{
		Running:      d.running.Load(),
		LockFilePath: d.lockPath,
		MetricsAddr:  d.addr,
		Ticks:        d.ticks,
		LastRun:      d.lastRun,
		LastReport:   d.lastReport,
	}
	if d.lastErr != nil {
		status.LastError = d.lastErr.Error()
	}
	if d.cron != nil && d.running.Load() {
		status.NextRun = d.cron.Entry(d.entry).Next
	}
	return status
}
