package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"corpora/internal/artifact"
	"corpora/internal/claim"
	"corpora/internal/config"
	"corpora/internal/corpus"
	"corpora/internal/hashgate"
	"corpora/internal/idgen"
	"corpora/internal/logging"
	"corpora/internal/metrics"
	"corpora/internal/plan"
	"corpora/internal/services"
	"corpora/internal/subset"
)

// Options wires a Runner.
type Options struct {
	Config    *config.Config
	Tracker   *subset.Tracker
	Corpus    *corpus.Store
	Artifacts *artifact.Store
	Loader    Loader
	// Stages in canonical order. The stage whose key equals the configured
	// checkpoint key always runs last.
	Stages []Stage
	// SkipKeys are visited when the content hash is unchanged.
	SkipKeys []string
	IDs      idgen.Generator
	Logger   *slog.Logger
	Metrics  *metrics.Registry
}

// Runner executes claimed batches.
type Runner struct {
	cfg           *config.Config
	tracker       *subset.Tracker
	corpus        *corpus.Store
	artifacts     *artifact.Store
	loader        Loader
	stages        map[string]Stage
	canonical     []string
	checkpointKey string
	gate          hashgate.Gate
	pool          *Pool
	ids           idgen.Generator
	logger        *slog.Logger
	metrics       *metrics.Registry
}

// Report summarizes one or more runs. Processed counts rows that completed at
// least one full plan; Skipped counts rows whose every expansion took the
// reduced path. Superseded counts rows reset or reclaimed while they ran;
// they are left for their next claim.
type Report struct {
	Subset     string
	RunID      string
	Claimed    int
	Processed  int
	Skipped    int
	Failed     int
	Superseded int
	Released   int
	Elapsed    time.Duration
}

// Add accumulates other into r.
func (r *Report) Add(other Report) {
	r.Claimed += other.Claimed
	r.Processed += other.Processed
	r.Skipped += other.Skipped
	r.Failed += other.Failed
	r.Superseded += other.Superseded
	r.Released += other.Released
}

// Completed returns the number of rows checkpointed.
func (r Report) Completed() int {
	return r.Processed + r.Skipped
}

// NewRunner validates the stage wiring.
func NewRunner(opts Options) (*Runner, error) {
	if opts.Config == nil || opts.Tracker == nil || opts.Corpus == nil || opts.Artifacts == nil || opts.Loader == nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "new runner", "config, tracker, corpus, artifacts and loader are required", nil)
	}
	checkpointKey := opts.Config.Pipeline.CheckpointKey
	stages := make(map[string]Stage, len(opts.Stages))
	canonical := make([]string, 0, len(opts.Stages))
	for _, stage := range opts.Stages {
		if stage == nil || stage.Key() == "" {
			return nil, services.Wrap(services.ErrConfiguration, "pipeline", "new runner", "stage with empty key", nil)
		}
		if _, dup := stages[stage.Key()]; dup {
			return nil, services.Wrap(services.ErrConfiguration, "pipeline", "new runner", fmt.Sprintf("duplicate stage %q", stage.Key()), nil)
		}
		stages[stage.Key()] = stage
		canonical = append(canonical, stage.Key())
	}
	if _, ok := stages[checkpointKey]; !ok {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "new runner", fmt.Sprintf("checkpoint stage %q not registered", checkpointKey), nil)
	}
	for _, key := range opts.SkipKeys {
		if _, ok := stages[key]; !ok {
			return nil, services.Wrap(services.ErrConfiguration, "pipeline", "new runner", fmt.Sprintf("skip key %q is not a registered stage", key), nil)
		}
	}
	ids := opts.IDs
	if ids == nil {
		ids = idgen.NewULID()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	for _, stage := range opts.Stages {
		if aware, ok := stage.(LoggerAware); ok {
			aware.SetLogger(logging.NewComponentLogger(logger, "stage"))
		}
	}
	return &Runner{
		cfg:           opts.Config,
		tracker:       opts.Tracker,
		corpus:        opts.Corpus,
		artifacts:     opts.Artifacts,
		loader:        opts.Loader,
		stages:        stages,
		canonical:     canonical,
		checkpointKey: checkpointKey,
		gate:          hashgate.New(opts.SkipKeys),
		pool:          NewPool(opts.Config.Pipeline.PoolSize),
		ids:           ids,
		logger:        logging.NewComponentLogger(logger, "pipeline"),
		metrics:       opts.Metrics,
	}, nil
}

// Canonical returns the full stage order.
func (r *Runner) Canonical() []string {
	return append([]string(nil), r.canonical...)
}

// Gate returns the hash gate used for routing.
func (r *Runner) Gate() hashgate.Gate {
	return r.gate
}

// Run processes every id in batch and closes it. Unstarted ids are released
// according to the claim policy when ctx ends early.
func (r *Runner) Run(ctx context.Context, batch *claim.Batch) (report Report, err error) {
	start := time.Now()
	report = Report{Subset: batch.Subset(), RunID: r.ids.NewID(), Claimed: batch.Len()}
	defer func() {
		before := len(batch.Unstarted())
		if closeErr := batch.Close(ctx); closeErr != nil {
			r.logger.Warn("release unstarted documents failed",
				logging.String(logging.FieldSubset, batch.Subset()),
				logging.Error(closeErr),
				logging.String(logging.FieldErrorHint, "stale claims are reclaimed by the daemon"),
			)
		} else if r.cfg.Pipeline.ReleasePolicy != config.ReleasePolicyKeep {
			report.Released = before
		}
		report.Elapsed = time.Since(start)
	}()
	if batch.Empty() {
		return report, nil
	}

	ctx = services.WithSubset(ctx, batch.Subset())
	ctx = services.WithRunID(ctx, report.RunID)
	logger := logging.WithContext(ctx, r.logger)

	def, err := r.tracker.Get(ctx, batch.Subset())
	if err != nil {
		return report, err
	}
	ids := batch.IDs()
	rows, err := r.corpus.GetMany(ctx, def.Table, ids)
	if err != nil {
		return report, err
	}
	snapshot, err := r.artifacts.LookupHashes(ctx, ids)
	if err != nil {
		return report, err
	}
	known := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		known[id.Key()] = struct{}{}
	}

	held := claimRef{subset: batch.Subset(), token: batch.Token()}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		batch.Start(id)
		row, ok := rows[id.Key()]
		if !ok {
			missing := services.Wrap(services.ErrNotFound, "pipeline", "load", fmt.Sprintf("%s/%s", def.Table, id), nil)
			report.count(r.recordFailure(ctx, logger, held, id, r.loader.Name(), missing))
			continue
		}
		outcome, err := r.runRow(ctx, logger, held, row, snapshot, known)
		report.count(outcome)
		if err != nil {
			return report, err
		}
	}

	logger.Info("batch complete",
		logging.String(logging.FieldEventType, "batch_complete"),
		logging.Int("claimed", report.Claimed),
		logging.Int("processed", report.Processed),
		logging.Int("skipped", report.Skipped),
		logging.Int("failed", report.Failed),
		logging.Int("superseded", report.Superseded),
	)
	return report, nil
}

type rowOutcome int

const (
	outcomeNone rowOutcome = iota
	outcomeProcessed
	outcomeSkipped
	outcomeFailed
	outcomeSuperseded
)

func (r *Report) count(outcome rowOutcome) {
	switch outcome {
	case outcomeProcessed:
		r.Processed++
	case outcomeSkipped:
		r.Skipped++
	case outcomeFailed:
		r.Failed++
	case outcomeSuperseded:
		r.Superseded++
	}
}

// claimRef names the claim a row is processed under.
type claimRef struct {
	subset string
	token  string
}

// runRow runs every expansion of row. It returns an error only when ctx ends
// or the stage wiring is broken.
func (r *Runner) runRow(ctx context.Context, logger *slog.Logger, held claimRef, row corpus.Row, snapshot map[string]string, known map[string]struct{}) (rowOutcome, error) {
	ctx = services.WithDocumentID(ctx, row.ID.String())
	logger = logger.With(logging.String(logging.FieldDocID, row.ID.String()))

	workspaces, err := r.loader.Load(ctx, row, r.pool)
	if err != nil {
		return r.recordFailure(ctx, logger, held, row.ID, r.loader.Name(), err), nil
	}
	defer func() {
		for _, ws := range workspaces {
			r.pool.Put(ws)
		}
	}()

	if len(workspaces) == 0 {
		if err := r.tracker.CompleteClaim(ctx, held.subset, row.ID, held.token, r.loader.Name()); err != nil {
			return r.recordFailure(ctx, logger, held, row.ID, r.loader.Name(), err), nil
		}
		logger.Debug("row expanded to nothing; checkpointed", logging.String("loader", r.loader.Name()))
		return outcomeSkipped, nil
	}

	if err := r.fetchMissingHashes(ctx, workspaces, snapshot, known); err != nil {
		return r.recordFailure(ctx, logger, held, row.ID, r.loader.Name(), err), nil
	}

	full := false
	for i, ws := range workspaces {
		ws.Subset = held.subset
		ws.Table = row.Table
		ws.SourceID = row.ID
		ws.ClaimToken = held.token
		if len(ws.DocID) == 0 {
			ws.DocID = row.ID
		}
		ws.DeferCheckpoint = i < len(workspaces)-1

		decision := r.gate.DecideFrom(snapshot, ws.DocID, ws.Content)
		ws.Decision = &decision
		p, err := plan.Build(r.canonical, ws.Decision, r.checkpointKey)
		if err != nil {
			return r.recordFailure(ctx, logger, held, row.ID, r.checkpointKey, err), err
		}
		if decision.Skip {
			logger.Debug("content unchanged; reduced plan",
				logging.Args(append(logging.DecisionAttrs("hash_gate", "skip", "content hash matches artifact"),
					logging.Strings("plan", p.Keys()))...)...)
		} else {
			full = true
		}

		started := time.Now()
		failedKey, err := r.execute(ctx, logger, ws, p)
		path := "full"
		if p.Reduced() {
			path = "reduced"
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
				return outcomeNone, ctxErr
			}
			outcome := r.recordFailure(ctx, logger, held, row.ID, failedKey, err)
			if outcome == outcomeFailed {
				r.metrics.ObserveDocument(held.subset, "failed", path, time.Since(started))
			}
			return outcome, nil
		}
		outcome := "processed"
		if p.Reduced() {
			outcome = "skipped"
		}
		r.metrics.ObserveDocument(held.subset, outcome, path, time.Since(started))
	}
	if full {
		return outcomeProcessed, nil
	}
	return outcomeSkipped, nil
}

// fetchMissingHashes loads stored hashes for expansion ids that the batch
// snapshot did not cover.
func (r *Runner) fetchMissingHashes(ctx context.Context, workspaces []*Workspace, snapshot map[string]string, known map[string]struct{}) error {
	var missing []corpus.DocumentID
	for _, ws := range workspaces {
		if len(ws.DocID) == 0 {
			continue
		}
		if _, ok := known[ws.DocID.Key()]; !ok {
			missing = append(missing, ws.DocID)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	hashes, err := r.artifacts.LookupHashes(ctx, missing)
	if err != nil {
		return err
	}
	for _, id := range missing {
		known[id.Key()] = struct{}{}
	}
	for key, hash := range hashes {
		snapshot[key] = hash
	}
	return nil
}

// execute walks the plan. On failure it returns the failing stage key.
func (r *Runner) execute(ctx context.Context, logger *slog.Logger, ws *Workspace, p plan.Plan) (string, error) {
	cursor := p.Cursor()
	for {
		key, ok := cursor.Next()
		if !ok {
			return "", nil
		}
		stage := r.stages[key]
		if stage == nil {
			return key, services.Wrap(services.ErrConfiguration, "pipeline", "execute", fmt.Sprintf("unknown stage %q", key), nil)
		}
		stageCtx := services.WithStage(ctx, key)
		started := time.Now()
		err := stage.Apply(stageCtx, ws)
		r.metrics.ObserveStage(key, time.Since(started), err)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return key, fmt.Errorf("stage %s: %w", key, ctxErr)
			}
			if !errors.Is(err, services.ErrStageFailure) {
				err = services.Wrap(services.ErrStageFailure, "pipeline", key, ws.DocID.String(), err)
			}
			return key, err
		}
		ws.LastComponent = key
		logger.Debug("stage complete", logging.String(logging.FieldStage, key))
	}
}

// recordFailure marks id failed under held. A cause or record attempt showing
// the claim was lost leaves the row to whoever reset it.
func (r *Runner) recordFailure(ctx context.Context, logger *slog.Logger, held claimRef, id corpus.DocumentID, component string, cause error) rowOutcome {
	if errors.Is(cause, subset.ErrClaimLost) {
		r.logSuperseded(logger, component, cause)
		return outcomeSuperseded
	}
	details := services.Details(cause)
	logging.ErrorWithContext(logger, "document failed", "stage_failed",
		logging.String(logging.FieldStage, component),
		logging.String(logging.FieldErrorKind, details.Kind),
		logging.String(logging.FieldErrorHint, details.Hint),
		logging.Error(cause),
	)
	err := r.tracker.FailClaim(context.WithoutCancel(ctx), held.subset, id, held.token, component, cause)
	switch {
	case err == nil:
	case errors.Is(err, subset.ErrClaimLost):
		r.logSuperseded(logger, component, err)
		return outcomeSuperseded
	default:
		logger.Error("failed to record document failure",
			logging.Error(err),
			logging.String(logging.FieldEventType, "mark_failed_error"),
			logging.String(logging.FieldErrorHint, "check database access"),
		)
	}
	return outcomeFailed
}

func (r *Runner) logSuperseded(logger *slog.Logger, component string, err error) {
	logger.Info("document reset while running; left for its next claim",
		logging.String(logging.FieldEventType, "claim_lost"),
		logging.String(logging.FieldStage, component),
		logging.Error(err),
	)
}
