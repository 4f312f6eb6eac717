package detect

import (
	"context"
	"time"

	"github.com/vipinbihari/hrs-detector/internal/hrserr"
	"github.com/vipinbihari/hrs-detector/internal/mutation"
	"github.com/vipinbihari/hrs-detector/internal/tlsctx"
	"github.com/vipinbihari/hrs-detector/internal/transport2"
	"github.com/vipinbihari/hrs-detector/internal/wire"
)

// defaultH2Headers is the fixed header set sent on every HTTP/2 probe, so a
// probe differs from its baseline only in the mutation under test.
func defaultH2Headers() []wire.HeaderPair {
	return []wire.HeaderPair{
		{Name: "user-agent", Value: "hrs-detector"},
		{Name: "accept", Value: "*/*"},
		{Name: "accept-encoding", Value: "gzip, deflate"},
		{Name: "accept-language", Value: "en-US"},
		{Name: "cache-control", Value: "no-cache"},
	}
}

// H2TEEngine detects H2.TE desyncs: an HTTP/2-terminating front-end
// downgrades to HTTP/1.1 to reach the back-end and forwards a
// transfer-encoding header that should never survive translation from a
// framed HTTP/2 request. Classification is strictly by t_probe vs t_base; no
// separate confirm request is sent, since the malformed pseudo-header state
// a confirm would need to reproduce is itself part of what is under test.
type H2TEEngine struct{}

func (H2TEEngine) Class() Class { return ClassH2TE }

func (e H2TEEngine) newTransport(target wire.Target, opts ScanOptions) *transport2.Transport {
	tc := tlsctx.New(target.Host, tlsctx.ALPNHTTP2, opts.VerifyCertificates)
	return transport2.New(transport2.Config{
		Target:         target,
		TLSConfig:      tc,
		ConnectTimeout: opts.ConnectTimeout,
		ReadTimeout:    opts.Timeout,
	})
}

// place builds the MalformedRequest for m according to its Placement: the
// normal_header and custom_header_name/value variants all land in the
// regular header list (HPACK performs no validation on names or values
// either way); request_line instead appends the mutation as a duplicate
// pseudo-header, since a caller-controlled pseudo-header is the only way to
// get CRLF-bearing bytes onto what a downgraded back-end would treat as the
// request line.
func place(m mutation.Mutation, extra []wire.HeaderPair, body []byte) (transport2.MalformedRequest, string) {
	req := transport2.MalformedRequest{
		Method:    "POST",
		Path:      "/",
		Headers:   append(append([]wire.HeaderPair{}, defaultH2Headers()...), extra...),
		Body:      body,
		EndStream: true,
	}
	var warning string
	switch m.Placement {
	case mutation.PlacementRequestLine:
		req.ExtraPseudoHeaders = append(req.ExtraPseudoHeaders, wire.HeaderPair{Name: m.HeaderName, Value: m.HeaderValue})
		warning = "mutation placed on a duplicate pseudo-header; HPACK encodes it without validating its contents, but not every peer accepts a second " + m.HeaderName + " field"
	case mutation.PlacementCustomHeaderName:
		req.Headers = append(req.Headers, wire.HeaderPair{Name: m.HeaderName, Value: "1"})
	case mutation.PlacementCustomHeaderValue:
		req.Headers = append(req.Headers, wire.HeaderPair{Name: "x-smuggle", Value: m.HeaderValue})
	default: // PlacementNormalHeader
		req.Headers = append(req.Headers, wire.HeaderPair{Name: m.HeaderName, Value: m.HeaderValue})
	}
	req.Headers = append(req.Headers, m.ExtraHeaders...)
	return req, warning
}

func (e H2TEEngine) Run(ctx context.Context, target wire.Target, cat mutation.Catalogue, opts ScanOptions, clk Clock) ([]Finding, []ProbeError) {
	var findings []Finding
	var errs []ProbeError

	tBase, _, baseErr := e.baseline(ctx, target, opts, clk)
	if baseErr != nil {
		errs = append(errs, ProbeError{Class: ClassH2TE, MutationDescription: "baseline", Err: baseErr})
		return findings, errs
	}

	for _, m := range cat {
		tProbe, timedOut, status, hasStatus, rawReq, probeErr := e.probe(ctx, target, m, opts, clk)
		if probeErr != nil && !timedOut {
			errs = append(errs, ProbeError{Class: ClassH2TE, MutationDescription: m.Description, Err: probeErr})
			continue
		}

		v := classify(hasStatus, status, timedOut, tProbe, tBase)
		if !v.suspicious {
			continue
		}

		_, warning := place(m, opts.CustomHeaders, []byte("0\r\n"))

		findings = append(findings, Finding{
			Class:               ClassH2TE,
			MutationDescription: m.Description,
			HeaderName:          m.HeaderName,
			HeaderValue:         m.HeaderValue,
			Placement:           m.Placement,
			ResponseTime:        tProbe,
			BaselineTime:        tBase,
			Ratio:               ratio(tProbe, tBase),
			Reason:              v.reason,
			Warning:             warning,
			RawRequest:          rawReq,
		})

		if opts.ExitFirst {
			return findings, errs
		}
	}
	return findings, errs
}

func (e H2TEEngine) baseline(ctx context.Context, target wire.Target, opts ScanOptions, clk Clock) (time.Duration, int, error) {
	tr := e.newTransport(target, opts)
	if err := tr.Connect(ctx); err != nil {
		return 0, 0, err
	}
	defer tr.Close()

	t0 := clk.Now()
	info, _, _, err := tr.SendRequest(ctx, "GET", target.RequestPath(), defaultH2Headers(), nil)
	elapsed := clk.Now().Sub(t0)
	if err != nil {
		return 0, 0, err
	}
	return elapsed, info.StatusCode, nil
}

// probe sends the H2.TE probe: an incomplete chunked terminator (0\r\n,
// missing its final CRLF) as the body. A front-end that downgrades to
// HTTP/1.1 and trusts transfer-encoding passes this straight through; a
// back-end also trusting transfer-encoding is left waiting for the
// terminating CRLF that never arrives. Sending the complete terminator
// (0\r\n\r\n) would close the chunked body cleanly and give a TE-trusting
// back-end nothing to stall on.
func (e H2TEEngine) probe(ctx context.Context, target wire.Target, m mutation.Mutation, opts ScanOptions, clk Clock) (time.Duration, bool, int, bool, []byte, error) {
	tr := e.newTransport(target, opts)
	if err := tr.Connect(ctx); err != nil {
		return 0, false, 0, false, nil, err
	}
	defer tr.Close()

	req, _ := place(m, opts.CustomHeaders, []byte("0\r\n"))
	req.Path = target.RequestPath()

	t0 := clk.Now()
	info, _, raw, err := tr.SendMalformed(ctx, req)
	elapsed := clk.Now().Sub(t0)

	if err != nil {
		return elapsed, hrserr.IsTimeout(err), 0, false, raw, err
	}
	return elapsed, false, info.StatusCode, info.HasStatus, raw, nil
}
