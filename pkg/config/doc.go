// Package config loads the connection profile a caller supplies when
// opening a lock session: the target serial number, the
// keep_connection retry mode, timeout overrides, and the raw
// parameter bytes for each gated operation (§4.1, §4.6). Profiles are
// authored as YAML, mirroring how the teacher's CLI tools load
// connection profiles.
package config
