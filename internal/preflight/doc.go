// Package preflight provides readiness checks for the filesystem paths and
// services corpora depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll before it starts scheduling runs and refuses to
//     start when a required check fails.
//   - The CLI "corpora health" command prints every result.
//
// Each check is gated by its config toggle; disabled features are skipped.
package preflight
