// Package cert parses the access certificate a caller supplies when
// opening a secure session with a lock: the base64-encoded
// certificate bytes and the device's public key (§4.4). Verification
// of the server's SERVER_VERIFY record against this certificate is
// performed by the SecureSessionCrypto capability (pkg/securesession);
// this package only decodes and validates the certificate's shape.
package cert
