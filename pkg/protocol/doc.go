// Package protocol defines the wire-level vocabulary of the lock link
// protocol: frame kinds, command bytes, notification types, result
// codes, and the fixed byte layouts used by GET_SETTINGS and
// GET_VERSION.
//
// Nothing in this package touches I/O. It is the shared dictionary
// between wireframe, securesession, commandmux, and lockapi.
package protocol
