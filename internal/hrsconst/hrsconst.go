// Package hrsconst holds the handful of default values shared across the
// transports and the CLI wrapper. Pooling/health-check/idle-timeout values
// have no equivalent here, since every probe opens and discards its own
// connection.
package hrsconst

import "time"

const (
	// DefaultConnectTimeout bounds dial plus TLS handshake for one probe.
	DefaultConnectTimeout = 5 * time.Second
	// DefaultReadTimeout bounds how long a probe waits for a response before
	// the read is itself treated as the smuggling signal.
	DefaultReadTimeout = 5 * time.Second
	// DefaultHpackTableSize is the dynamic table size used when decoding
	// HTTP/2 response header blocks.
	DefaultHpackTableSize = 4096
)
