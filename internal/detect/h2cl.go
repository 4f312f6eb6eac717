package detect

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/vipinbihari/hrs-detector/internal/hrserr"
	"github.com/vipinbihari/hrs-detector/internal/mutation"
	"github.com/vipinbihari/hrs-detector/internal/tlsctx"
	"github.com/vipinbihari/hrs-detector/internal/transport2"
	"github.com/vipinbihari/hrs-detector/internal/wire"
)

// oversizedContentLengthPad is added to the actual body length to produce
// the declared content-length sent on every H2.CL probe, regardless of
// which catalogue entry is under test — a back-end trusting content-length
// over the DATA frame's own length is left waiting for this many bytes that
// never arrive.
const oversizedContentLengthPad = 4096

// H2CLEngine detects H2.CL desyncs: the mirror image of H2.TE. Here the
// mutation is a content-length header whose declared value exceeds the body
// actually framed in DATA; a front-end that forwards content-length
// downstream on an HTTP/1.1 connection leaves the back-end waiting on bytes
// that never arrive, stalling the shared connection for the next request in
// line. As with H2.TE, classification is a direct timing read with no
// confirm leg.
type H2CLEngine struct{}

func (H2CLEngine) Class() Class { return ClassH2CL }

func (e H2CLEngine) newTransport(target wire.Target, opts ScanOptions) *transport2.Transport {
	tc := tlsctx.New(target.Host, tlsctx.ALPNHTTP2, opts.VerifyCertificates)
	return transport2.New(transport2.Config{
		Target:         target,
		TLSConfig:      tc,
		ConnectTimeout: opts.ConnectTimeout,
		ReadTimeout:    opts.Timeout,
	})
}

// placeCL builds the malformed request for m. The declared content-length is
// always derived from the actual body length plus oversizedContentLengthPad
// — never from m.HeaderValue, which the built-in catalogue carries for
// transfer-encoding-oriented classes ("chunked", a request-line blob) and
// which need not be a parseable integer. m.Placement instead decides where the
// catalogue's header-name/value mutation itself lands, via the same rules
// as H2TEEngine's place, since HPACK validates neither header names nor
// values regardless of which slot is used.
func placeCL(m mutation.Mutation, extra []wire.HeaderPair, body []byte) (transport2.MalformedRequest, string) {
	req := transport2.MalformedRequest{
		Method:    "POST",
		Path:      "/",
		Headers:   append(append([]wire.HeaderPair{}, defaultH2Headers()...), extra...),
		Body:      body,
		EndStream: true,
	}
	declaredLength := strconv.Itoa(len(body) + oversizedContentLengthPad)
	var warning string
	switch m.Placement {
	case mutation.PlacementRequestLine:
		req.ExtraPseudoHeaders = append(req.ExtraPseudoHeaders, wire.HeaderPair{Name: m.HeaderName, Value: m.HeaderValue})
		warning = "mutation placed on a duplicate pseudo-header; HPACK encodes it without validating its contents, but not every peer accepts a second " + m.HeaderName + " field"
	case mutation.PlacementCustomHeaderName:
		req.Headers = append(req.Headers, wire.HeaderPair{Name: m.HeaderName, Value: "1"})
	case mutation.PlacementCustomHeaderValue:
		req.Headers = append(req.Headers, wire.HeaderPair{Name: "x-smuggle", Value: m.HeaderValue})
	default:
		if !strings.EqualFold(m.HeaderName, "content-length") {
			req.Headers = append(req.Headers, wire.HeaderPair{Name: m.HeaderName, Value: m.HeaderValue})
		}
	}
	req.Headers = append(req.Headers, wire.HeaderPair{Name: "content-length", Value: declaredLength})
	req.Headers = append(req.Headers, m.ExtraHeaders...)
	return req, warning
}

func (e H2CLEngine) Run(ctx context.Context, target wire.Target, cat mutation.Catalogue, opts ScanOptions, clk Clock) ([]Finding, []ProbeError) {
	var findings []Finding
	var errs []ProbeError

	tBase, _, baseErr := e.baseline(ctx, target, opts, clk)
	if baseErr != nil {
		errs = append(errs, ProbeError{Class: ClassH2CL, MutationDescription: "baseline", Err: baseErr})
		return findings, errs
	}

	for _, m := range cat {
		tProbe, timedOut, status, hasStatus, rawReq, probeErr := e.probe(ctx, target, m, opts, clk)
		if probeErr != nil && !timedOut {
			errs = append(errs, ProbeError{Class: ClassH2CL, MutationDescription: m.Description, Err: probeErr})
			continue
		}

		v := classify(hasStatus, status, timedOut, tProbe, tBase)
		if !v.suspicious {
			continue
		}

		_, warning := placeCL(m, opts.CustomHeaders, []byte("X"))

		findings = append(findings, Finding{
			Class:               ClassH2CL,
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

func (e H2CLEngine) baseline(ctx context.Context, target wire.Target, opts ScanOptions, clk Clock) (time.Duration, int, error) {
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

// probe declares a content-length larger than the single byte actually sent
// in the DATA frame, with EndStream still set: a vulnerable back-end that
// trusts content-length over the frame's own length blocks waiting for the
// remaining declared bytes.
func (e H2CLEngine) probe(ctx context.Context, target wire.Target, m mutation.Mutation, opts ScanOptions, clk Clock) (time.Duration, bool, int, bool, []byte, error) {
	tr := e.newTransport(target, opts)
	if err := tr.Connect(ctx); err != nil {
		return 0, false, 0, false, nil, err
	}
	defer tr.Close()

	req, _ := placeCL(m, opts.CustomHeaders, []byte("X"))
	req.Path = target.RequestPath()

	t0 := clk.Now()
	info, _, raw, err := tr.SendMalformed(ctx, req)
	elapsed := clk.Now().Sub(t0)

	if err != nil {
		return elapsed, hrserr.IsTimeout(err), 0, false, raw, err
	}
	return elapsed, false, info.StatusCode, info.HasStatus, raw, nil
}
