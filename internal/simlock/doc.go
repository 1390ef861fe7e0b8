// Package simlock is an in-process simulation of a lock peripheral:
// the server side of the SecureSession handshake (§4.4) and the
// command/notification responder behind the nine wire commands §4.6's
// LockApi drives. It exists so cmd/lockctl has something to talk to
// without real BLE hardware, mirroring how the teacher's
// cmd/mash-device simulates a device for its own interactive CLI and
// its internal/testharness/mock package stands in for a collaborator
// under test. Nothing here is part of the protocol engine itself;
// real lock firmware implements the device side with an undocumented
// algorithm behind the same frame contract (§4.4).
package simlock
