// Package ipc provides daemon control over a local Unix domain socket.
//
// The server exposes daemon operations as JSON-RPC methods under the
// "Cardpress" service name; the client offers typed wrappers for each method.
// Request and response DTOs live in types.go and reuse the api package's
// queue representations so the CLI renders the same shapes whether it talks
// to the daemon or reads the store directly.
package ipc
