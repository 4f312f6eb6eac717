package transport2

import (
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"
)

// renderFields renders the header fields and body actually handed to
// sendHeaders/sendData as a readable "name: value" dump terminated by a
// blank line and the body, mirroring wire.BuildRequest1's framing for the
// HTTP/1 transport. It is not the literal bytes placed on the wire — those
// are HPACK-compressed and split across HEADERS/CONTINUATION/DATA frames —
// but it preserves field order and duplicates exactly as encoded, which is
// what a Finding's raw request is for: showing what was actually sent.
func renderFields(fields []hpack.HeaderField, body []byte) []byte {
	var out []byte
	for _, f := range fields {
		out = append(out, f.Name...)
		out = append(out, ':', ' ')
		out = append(out, f.Value...)
		out = append(out, '\r', '\n')
	}
	out = append(out, '\r', '\n')
	out = append(out, body...)
	return out
}

// buildPaddedDataPayload lays out the PADDED DATA frame payload by hand:
// <pad_len byte> || body || zero_bytes(pad_len). The frame header itself
// (type, flags, stream id, and the resulting length) is written separately
// via (*http2.Framer).WriteRawFrame, which performs no content validation —
// unlike WriteData, which refuses to let the caller control padding length
// independently of the declared frame length.
func buildPaddedDataPayload(body []byte, padLen int) []byte {
	payload := make([]byte, 0, 1+len(body)+padLen)
	payload = append(payload, byte(padLen))
	payload = append(payload, body...)
	payload = append(payload, make([]byte, padLen)...)
	return payload
}

func dataFlags(padded, endStream bool) http2.Flags {
	var f http2.Flags
	if padded {
		f |= http2.FlagDataPadded
	}
	if endStream {
		f |= http2.FlagDataEndStream
	}
	return f
}

func headersFlags(endStream bool) http2.Flags {
	f := http2.FlagHeadersEndHeaders
	if endStream {
		f |= http2.FlagHeadersEndStream
	}
	return f
}
