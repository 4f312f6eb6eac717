// Package mutation holds the declarative catalogue of header variants used
// as desync probes, and its JSON loader.
package mutation

import (
	"encoding/json"
	"os"

	"github.com/vipinbihari/hrs-detector/internal/wire"
)

// Placement identifies where, in an HTTP/2 header list, an injected
// CRLF-bearing mutation is placed. HTTP/1 classes ignore it.
type Placement int

const (
	PlacementNormalHeader Placement = iota
	PlacementCustomHeaderValue
	PlacementCustomHeaderName
	PlacementRequestLine
)

func (p Placement) String() string {
	switch p {
	case PlacementNormalHeader:
		return "normal_header"
	case PlacementCustomHeaderValue:
		return "custom_header_value"
	case PlacementCustomHeaderName:
		return "custom_header_name"
	case PlacementRequestLine:
		return "request_line"
	default:
		return "unknown"
	}
}

// Mutation is one entry in the catalogue: a header name/value pair, an
// optional placement for the HTTP/2 classes, and any extra headers that ride
// along with it.
type Mutation struct {
	Description  string
	HeaderName   string
	HeaderValue  string
	Placement    Placement
	ExtraHeaders []wire.HeaderPair
}

// Catalogue is an ordered, read-only-after-load list of mutations.
type Catalogue []Mutation

// fileEntry mirrors the on-disk JSON shape (§6 of the design document).
type fileEntry struct {
	Description  string          `json:"description"`
	HeaderName   string          `json:"header_name"`
	HeaderValue  string          `json:"header_value"`
	ExtraHeaders []fileSubHeader `json:"extra_headers,omitempty"`
}

type fileSubHeader struct {
	HeaderName  string `json:"header_name"`
	HeaderValue string `json:"header_value"`
}

// Default returns the built-in catalogue: the identity chunked
// Transfer-Encoding, a trailing-space-before-colon obfuscation, and one
// request_line placement variant for the HTTP/2 classes.
func Default() Catalogue {
	return Catalogue{
		{
			Description: "Standard chunked encoding",
			HeaderName:  "Transfer-Encoding",
			HeaderValue: "chunked",
			Placement:   PlacementNormalHeader,
		},
		{
			Description: "Space before colon in header name",
			HeaderName:  "Transfer-Encoding ",
			HeaderValue: "chunked",
			Placement:   PlacementNormalHeader,
		},
		{
			Description: "Request-line smuggled via :method pseudo-header",
			HeaderName:  ":method",
			HeaderValue: "POST / HTTP/1.1\r\nTransfer-encoding: chunked\r\nx: x",
			Placement:   PlacementRequestLine,
		},
	}
}

// LoadFile reads a JSON mutation file (§6) and returns it as a Catalogue.
// Control bytes are expected to be encoded as JSON escape sequences in the
// source file; encoding/json unescapes them on Unmarshal, so no further
// post-processing is performed here.
func LoadFile(path string) (Catalogue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entries []fileEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	cat := make(Catalogue, 0, len(entries))
	for _, e := range entries {
		m := Mutation{
			Description: e.Description,
			HeaderName:  e.HeaderName,
			HeaderValue: e.HeaderValue,
			Placement:   PlacementNormalHeader,
		}
		for _, eh := range e.ExtraHeaders {
			m.ExtraHeaders = append(m.ExtraHeaders, wire.HeaderPair{Name: eh.HeaderName, Value: eh.HeaderValue})
		}
		cat = append(cat, m)
	}
	return cat, nil
}
