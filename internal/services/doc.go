// Package services defines shared utilities consumed by the pipeline
// components and the stages they run.
//
// Key responsibilities:
//   - Context helpers that stamp subset names, document identifiers, stage
//     keys, worker names, and run identifiers for logging.
//   - Structured error markers plus the Wrap helper so storage failures,
//     missing subsets, and stage failures can be told apart with errors.Is.
//
// Use these helpers when wiring new stage logic so error handling and
// observability stay uniform across the engine.
package services
