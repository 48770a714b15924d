// Package pipeline runs claimed documents through their stage plans.
//
// For every claimed id the runner loads the source row, expands it through the
// configured Loader into one or more workspaces, asks the hash gate whether
// the content changed since the last artifact, builds the stage plan, and runs
// each stage in order. The checkpoint stage is always last. A stage failure
// isolates that document: it stays in_process with the error recorded, and
// the rest of the batch continues.
package pipeline
