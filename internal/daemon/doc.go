// Package daemon coordinates the long-running Cardpress process.
//
// It wires configuration, queue storage, the directory watcher, the intake
// tracker, and the workflow manager into a single lifecycle with flock-based
// locking to prevent multiple instances. The daemon exposes the queue
// maintenance operations the IPC layer serves, intake pause/resume, and a
// combined status snapshot.
//
// Keep orchestration logic here: individual pipeline steps should live in
// their respective packages while the daemon focuses on startup, shutdown,
// and high level coordination.
package daemon
