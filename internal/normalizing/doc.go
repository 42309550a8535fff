// Package normalizing turns detected card sources into print-ready artifacts.
//
// The stage re-reads the source file, verifies it still matches the
// fingerprint recorded at intake, and runs the imaging pipeline to produce a
// fixed-dimension artifact in the staging directory. Artifacts are written to
// a temp file and renamed into place so crashes never leave partial files
// behind. A supersession check runs just before commit: if a newer drop of the
// same source claimed the path while we were resizing, the artifact is
// discarded instead of advancing a dead job.
package normalizing
