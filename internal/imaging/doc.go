// Package imaging converts arbitrary source images into print-ready card
// artifacts at a fixed physical size and resolution. Normalization is pure:
// the same input bytes and options always produce the same output bytes.
package imaging
