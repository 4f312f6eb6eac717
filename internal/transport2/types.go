package transport2

import (
	"strings"

	"github.com/vipinbihari/hrs-detector/internal/wire"
)

// ResponseInfo is the decoded, order-preserving header list of one HTTP/2
// response, plus its accumulated DATA payload.
type ResponseInfo struct {
	StatusCode int
	HasStatus  bool
	Headers    []wire.HeaderPair // excludes pseudo-headers
}

// Get returns the first header value matching name case-insensitively.
func (r *ResponseInfo) Get(name string) (string, bool) {
	for _, h := range r.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value, true
		}
	}
	return "", false
}

// MalformedRequest is a caller-controlled HTTP/2 request. The default
// pseudo-header set (:method, :path, :scheme, :authority) is always sent
// first; ExtraPseudoHeaders is then appended verbatim, in order, with no
// deduplication — passing a second ":method" there produces two ":method"
// fields in the HPACK block, exactly as the caller wrote them.
type MalformedRequest struct {
	Method             string
	Path               string
	ExtraPseudoHeaders []wire.HeaderPair
	Headers            []wire.HeaderPair
	Body               []byte
	EndStream          bool
}
