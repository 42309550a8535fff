// Package workflow advances queued print jobs through the configured
// processing stages.
//
// The Manager runs two independent lanes. The normalize lane claims detected
// jobs (and failed jobs whose backoff gate has passed) with a configurable
// number of workers, since image resizing parallelizes cleanly. The print
// lane runs exactly one worker so the physical printer only ever receives one
// job at a time. Claims are atomic single-row UPDATEs in the queue store, so
// workers never race over the same job.
//
// The manager owns the retry policy: stage failures are classified through
// the services error taxonomy, consume the retry budget unless the printer
// was simply unavailable, and either reschedule with exponential backoff or
// quarantine the job. Heartbeats are written while a stage executes and stale
// claims from dead workers are reclaimed before each claim round.
package workflow
