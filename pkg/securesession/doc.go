// Package securesession implements the client side of the lock's
// authenticated key-exchange handshake (HELLO, SERVER_VERIFY,
// CLIENT_VERIFY/CLIENT_VERIFY_END, SESSION_INITIALIZED) and the
// post-handshake encrypt/decrypt oracle used by CommandMux.
//
// The exact cryptographic algorithm is a firmware implementation
// detail; Session only reproduces the observable frame exchange. The
// actual key agreement, record verification, and AEAD operations are
// delegated to a Crypto implementation, so a test double or an
// alternate scheme can be substituted without touching the state
// machine.
package securesession
