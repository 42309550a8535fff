// Package printer talks to CUPS through the lp and lpstat command-line
// clients. The Backend interface keeps the print stage testable and leaves
// room for other spoolers.
package printer
