package pipelinedef

import (
	"log/slog"

	"corpora/internal/artifact"
	"corpora/internal/checkpoint"
	"corpora/internal/config"
	"corpora/internal/corpus"
	"corpora/internal/idgen"
	"corpora/internal/loader"
	"corpora/internal/metrics"
	"corpora/internal/pipeline"
	"corpora/internal/stages"
	"corpora/internal/storage"
	"corpora/internal/subset"
)

// Deps are the shared services a runner is built from.
type Deps struct {
	DB      *storage.DB
	IDs     idgen.Generator
	Cache   artifact.HashCache
	Logger  *slog.Logger
	Metrics *metrics.Registry
}

// Engine bundles a runner with the stores it was built on.
type Engine struct {
	Definition Definition
	Tracker    *subset.Tracker
	Corpus     *corpus.Store
	Artifacts  *artifact.Store
	Runner     *pipeline.Runner
}

// Assemble wires the stages named in def into a runner.
func Assemble(cfg *config.Config, def Definition, deps Deps) (*Engine, error) {
	ids := deps.IDs
	if ids == nil {
		var err error
		if ids, err = idgen.New(cfg.IDs.Generator); err != nil {
			return nil, err
		}
	}
	tracker := subset.NewTracker(deps.DB, ids)
	store := corpus.NewStore(deps.DB)
	opts := []artifact.Option{artifact.WithLogger(deps.Logger)}
	if deps.Cache != nil {
		opts = append(opts, artifact.WithCache(deps.Cache))
	}
	artifacts := artifact.NewStore(deps.DB, def.ArtifactTable, def.HashField, opts...)

	load, err := loader.New(def.Loader, def.HashField)
	if err != nil {
		return nil, err
	}
	registry := map[string]pipeline.Stage{
		stages.KeyNormalize:        stages.Normalize{},
		stages.KeySentences:        stages.Sentences{},
		stages.KeyTokens:           stages.Tokens{},
		stages.KeyPersist:          stages.NewPersist(artifacts),
		cfg.Pipeline.CheckpointKey: checkpoint.New(cfg.Pipeline.CheckpointKey, tracker),
	}
	ordered := make([]pipeline.Stage, 0, len(def.Stages))
	for _, key := range def.Stages {
		ordered = append(ordered, registry[key])
	}

	runner, err := pipeline.NewRunner(pipeline.Options{
		Config:    cfg,
		Tracker:   tracker,
		Corpus:    store,
		Artifacts: artifacts,
		Loader:    load,
		Stages:    ordered,
		SkipKeys:  def.SkipKeys,
		IDs:       ids,
		Logger:    deps.Logger,
		Metrics:   deps.Metrics,
	})
	if err != nil {
		return nil, err
	}
	return &Engine{
		Definition: def,
		Tracker:    tracker,
		Corpus:     store,
		Artifacts:  artifacts,
		Runner:     runner,
	}, nil
}
