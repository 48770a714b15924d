// Package daemon coordinates the long-running corpora process.
//
// It wires configuration, the pipeline engine, a cron schedule and the
// Prometheus endpoint into a single lifecycle with flock-based locking to
// prevent multiple instances. Every scheduled tick first returns stale claims
// to the unprocessed pool and then drains each configured subset with the
// configured number of workers.
//
// Keep orchestration logic here: claiming, routing and stage execution live in
// their own packages while the daemon focuses on startup, shutdown and
// scheduling.
package daemon
