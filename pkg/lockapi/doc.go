// Package lockapi implements §4.6 of the lock engine: the typed
// operations (open, close, pull spring, get state, get settings, get
// version, set signed time, request signed serial, register device)
// built on top of pkg/commandmux, with per-operation result-byte to
// error mapping and the transparent BUSY retry policy.
package lockapi
