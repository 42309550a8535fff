// Package printing submits normalized artifacts to the print spooler and
// tracks them to completion.
//
// The stage runs single-file: one worker submits one card at a time so the
// physical printer is never handed overlapping jobs. After submission it polls
// the spooler until the job leaves the queue, then applies the terminal
// disposition: the staged artifact is removed and the original source file is
// archived to the processed directory (or deleted when auto_delete is set).
// Disposition failures never un-complete a printed card; they flag the job
// for operator attention instead.
package printing
