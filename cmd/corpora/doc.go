// Command corpora is the command-line entry point for the incremental corpus
// pipeline.
//
// Subcommands define and inspect subsets, import JSON Lines into corpus
// tables, run the pipeline over a subset, explain the plan chosen for a single
// document and host the scheduling daemon. Every command loads configuration
// through the shared commandContext so flags like --config behave the same
// everywhere.
package main
