package pipelinedef_test

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"corpora/internal/idgen"
	"corpora/internal/pipelinedef"
	"corpora/internal/services"
	"corpora/internal/testsupport"
)

func TestParseFillsDefaults(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	def, err := pipelinedef.Parse([]byte("loader: paragraphs\nartifact_table: paras\n"), cfg)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if def.Loader != "paragraphs" || def.ArtifactTable != "paras" || def.HashField != "text" {
		t.Fatalf("unexpected definition %+v", def)
	}
	if !slices.Equal(def.Stages, []string{"normalize", "sentences", "tokens", "persist", "checkpoint"}) {
		t.Fatalf("Stages = %v", def.Stages)
	}
	if !slices.Equal(def.SkipKeys, []string{"checkpoint"}) {
		t.Fatalf("SkipKeys = %v", def.SkipKeys)
	}
}

func TestParseRejectsInvalidDescriptors(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown stage", "stages: [normalize, lemmatize, checkpoint]\n"},
		{"missing checkpoint", "stages: [normalize, persist]\n"},
		{"duplicate stage", "stages: [tokens, tokens, checkpoint]\n"},
		{"skip key outside stages", "stages: [tokens, checkpoint]\nskip_keys: [persist]\n"},
		{"malformed yaml", "stages: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := pipelinedef.Parse([]byte(tt.yaml), cfg)
			if !errors.Is(err, services.ErrConfiguration) {
				t.Fatalf("expected ErrConfiguration, got %v", err)
			}
		})
	}
}

func TestEmptySkipKeysAreKept(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	def, err := pipelinedef.Parse([]byte("skip_keys: []\n"), cfg)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if def.SkipKeys == nil || len(def.SkipKeys) != 0 {
		t.Fatalf("explicit empty skip keys should stay empty, got %#v", def.SkipKeys)
	}
}

func TestLoadReadsConfiguredFile(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if _, err := pipelinedef.Load(cfg); err != nil {
		t.Fatalf("Load default: %v", err)
	}

	path := filepath.Join(testsupport.BaseDir(cfg), "pipeline.yaml")
	if err := os.WriteFile(path, []byte("loader: html\nhash_field: body\n"), 0o644); err != nil {
		t.Fatalf("write descriptor: %v", err)
	}
	cfg.Pipeline.PipelineFile = path
	def, err := pipelinedef.Load(cfg)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if def.Loader != "html" || def.HashField != "body" {
		t.Fatalf("unexpected definition %+v", def)
	}

	cfg.Pipeline.PipelineFile = filepath.Join(testsupport.BaseDir(cfg), "missing.yaml")
	if _, err := pipelinedef.Load(cfg); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration for missing file, got %v", err)
	}
}

func TestAssembleBuildsRunner(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenDB(t, cfg)
	engine, err := pipelinedef.Assemble(cfg, pipelinedef.Default(cfg), pipelinedef.Deps{DB: db, IDs: idgen.NewSequence("r")})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if got := engine.Runner.Canonical(); !slices.Equal(got, []string{"normalize", "sentences", "tokens", "persist", "checkpoint"}) {
		t.Fatalf("Canonical = %v", got)
	}
	if engine.Artifacts.Table() != cfg.Pipeline.ArtifactTable {
		t.Fatalf("artifact table = %q", engine.Artifacts.Table())
	}
}
