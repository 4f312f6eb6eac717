// Package tlsctx builds client TLS configurations for probe connections.
// Targets under test are typically throwaway instances with self-signed or
// expired certificates, so verification is opt-in rather than the default.
package tlsctx

import "crypto/tls"

// New builds a *tls.Config for host with the given ALPN protocol list. When
// verify is false, both hostname verification and certificate-chain
// validation are disabled via InsecureSkipVerify — nothing is layered back in
// through VerifyConnection, since the whole point is to reach targets whose
// certificates would otherwise be rejected. SNI is always set to host.
//
// New is pure: it builds a fresh *tls.Config on every call and keeps no
// package-level state, so concurrent callers never share a config.
func New(host string, alpn []string, verify bool) *tls.Config {
	return &tls.Config{
		ServerName:         host,
		InsecureSkipVerify: !verify,
		NextProtos:         alpn,
		MinVersion:         tls.VersionTLS12,
	}
}

// ALPNHTTP1 is the ALPN protocol list for an HTTP/1.1-only connection.
var ALPNHTTP1 = []string{"http/1.1"}

// ALPNHTTP2 is the ALPN protocol list offering HTTP/2 with an HTTP/1.1 fallback.
var ALPNHTTP2 = []string{"h2", "http/1.1"}
