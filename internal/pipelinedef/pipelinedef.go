// Package pipelinedef reads pipeline descriptors and assembles runners from
// them.
//
// A descriptor is a small YAML document:
//
//	loader: paragraphs
//	hash_field: text
//	artifact_table: paragraphs_out
//	stages: [normalize, sentences, tokens, persist, checkpoint]
//	skip_keys: [checkpoint]
//
// Fields left out fall back to the [pipeline] section of the config.
package pipelinedef

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"corpora/internal/config"
	"corpora/internal/loader"
	"corpora/internal/services"
	"corpora/internal/stages"
)

// Definition describes one pipeline.
type Definition struct {
	Loader        string   `yaml:"loader"`
	HashField     string   `yaml:"hash_field"`
	ArtifactTable string   `yaml:"artifact_table"`
	Stages        []string `yaml:"stages"`
	SkipKeys      []string `yaml:"skip_keys"`
}

// Default returns the reference text pipeline configured by cfg.
func Default(cfg *config.Config) Definition {
	return Definition{
		Loader:        loader.KindText,
		HashField:     cfg.Pipeline.HashField,
		ArtifactTable: cfg.Pipeline.ArtifactTable,
		Stages: []string{
			stages.KeyNormalize,
			stages.KeySentences,
			stages.KeyTokens,
			stages.KeyPersist,
			cfg.Pipeline.CheckpointKey,
		},
		SkipKeys: []string{cfg.Pipeline.CheckpointKey},
	}
}

// Load reads the descriptor named by cfg.Pipeline.PipelineFile, or returns
// Default when none is configured.
func Load(cfg *config.Config) (Definition, error) {
	path := strings.TrimSpace(cfg.Pipeline.PipelineFile)
	if path == "" {
		return Default(cfg), nil
	}
	path, err := config.ExpandPath(path)
	if err != nil {
		return Definition{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Definition{}, services.Wrap(services.ErrConfiguration, "pipelinedef", "load", fmt.Sprintf("pipeline file %s not found", path), nil)
		}
		return Definition{}, fmt.Errorf("read pipeline file: %w", err)
	}
	return Parse(data, cfg)
}

// Parse decodes a descriptor and fills unset fields from cfg.
func Parse(data []byte, cfg *config.Config) (Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return Definition{}, services.Wrap(services.ErrConfiguration, "pipelinedef", "parse", "invalid yaml", err)
	}
	base := Default(cfg)
	if strings.TrimSpace(def.Loader) == "" {
		def.Loader = base.Loader
	}
	if strings.TrimSpace(def.HashField) == "" {
		def.HashField = base.HashField
	}
	if strings.TrimSpace(def.ArtifactTable) == "" {
		def.ArtifactTable = base.ArtifactTable
	}
	if len(def.Stages) == 0 {
		def.Stages = base.Stages
	}
	if def.SkipKeys == nil {
		def.SkipKeys = base.SkipKeys
	}
	if err := def.Validate(cfg.Pipeline.CheckpointKey); err != nil {
		return Definition{}, err
	}
	return def, nil
}

// Validate checks stage names against the known stages.
func (d Definition) Validate(checkpointKey string) error {
	known := []string{stages.KeyNormalize, stages.KeySentences, stages.KeyTokens, stages.KeyPersist, checkpointKey}
	seen := make(map[string]struct{}, len(d.Stages))
	for _, key := range d.Stages {
		if !slices.Contains(known, key) {
			return services.Wrap(services.ErrConfiguration, "pipelinedef", "validate", fmt.Sprintf("unknown stage %q", key), nil)
		}
		if _, dup := seen[key]; dup {
			return services.Wrap(services.ErrConfiguration, "pipelinedef", "validate", fmt.Sprintf("stage %q listed twice", key), nil)
		}
		seen[key] = struct{}{}
	}
	if _, ok := seen[checkpointKey]; !ok {
		return services.Wrap(services.ErrConfiguration, "pipelinedef", "validate", fmt.Sprintf("stages must include %q", checkpointKey), nil)
	}
	for _, key := range d.SkipKeys {
		if _, ok := seen[key]; !ok {
			return services.Wrap(services.ErrConfiguration, "pipelinedef", "validate", fmt.Sprintf("skip key %q is not in stages", key), nil)
		}
	}
	if strings.TrimSpace(d.ArtifactTable) == "" {
		return services.Wrap(services.ErrConfiguration, "pipelinedef", "validate", "artifact_table is empty", nil)
	}
	return nil
}
