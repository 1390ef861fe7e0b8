package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"time"
)

// clientSignedTimeProvider supplies the supervisor's signed-time
// refresh flow (§4.3) with a freshly timestamped, nominally-signed
// payload. A production client would sign the timestamp with a
// server-issued time-authority key; lockctl's simulated lock (§4.6
// SET_SIGNED_TIME) accepts any well-formed payload without verifying
// the signature, so this demo signs with random bytes of plausible
// length rather than standing up a separate signing authority.
func clientSignedTimeProvider(ctx context.Context) (datetimeB64, signatureB64 string, err error) {
	datetime := time.Now().UTC().Format(time.RFC3339)

	signature := make([]byte, 64)
	if _, err := rand.Read(signature); err != nil {
		return "", "", err
	}

	return base64.StdEncoding.EncodeToString([]byte(datetime)), base64.StdEncoding.EncodeToString(signature), nil
}
