// Package api holds the transport-friendly representations of queue and
// daemon state shared by the IPC protocol and CLI rendering.
//
// Keeping the DTOs here means the wire shapes evolve in one place: the IPC
// server converts queue records with FromQueueJob, and the CLI renders the
// same structs it receives.
package api
