// Package preflight provides readiness checks for the directories, binaries,
// and spooler destination Cardpress depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll at startup and refuses to serve when a required
//     check fails, so misconfiguration surfaces immediately instead of after
//     the first card drops.
//   - The CLI "cardpress status" command uses the individual check functions
//     to display environment health.
package preflight
