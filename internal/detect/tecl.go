package detect

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/vipinbihari/hrs-detector/internal/hrserr"
	"github.com/vipinbihari/hrs-detector/internal/mutation"
	"github.com/vipinbihari/hrs-detector/internal/tlsctx"
	"github.com/vipinbihari/hrs-detector/internal/transport1"
	"github.com/vipinbihari/hrs-detector/internal/wire"
)

// TECLEngine detects TE.CL desyncs: a front-end trusting Transfer-Encoding
// forwards the whole chunked body, including its terminating zero-chunk, but
// the back-end trusts Content-Length and stops reading early, leaving the
// remainder of the chunked frame to be interpreted as the start of the next
// request.
type TECLEngine struct{}

func (TECLEngine) Class() Class { return ClassTECL }

func (e TECLEngine) newTransport(target wire.Target, opts ScanOptions) *transport1.Transport {
	var tc *tls.Config
	if target.TLS {
		tc = tlsctx.New(target.Host, tlsctx.ALPNHTTP1, opts.VerifyCertificates)
	}
	return transport1.New(transport1.Config{
		Target:         target,
		TLSConfig:      tc,
		ConnectTimeout: opts.ConnectTimeout,
		ReadTimeout:    opts.Timeout,
	})
}

func (e TECLEngine) Run(ctx context.Context, target wire.Target, cat mutation.Catalogue, opts ScanOptions, clk Clock) ([]Finding, []ProbeError) {
	var findings []Finding
	var errs []ProbeError

	tBase, _, baseErr := e.baseline(ctx, target, opts, clk)
	if baseErr != nil {
		errs = append(errs, ProbeError{Class: ClassTECL, MutationDescription: "baseline", Err: baseErr})
		return findings, errs
	}

	for _, m := range cat {
		tProbe, timedOut, status, hasStatus, rawProbe, probeErr := e.probe(ctx, target, m, opts, clk)
		if probeErr != nil && !timedOut {
			errs = append(errs, ProbeError{Class: ClassTECL, MutationDescription: m.Description, Err: probeErr})
			continue
		}

		v := classify(hasStatus, status, timedOut, tProbe, tBase)
		if !v.suspicious {
			continue
		}

		_, confirmTimedOut, rawConfirm, confirmErr := e.confirm(ctx, target, m, opts, clk)
		if confirmErr != nil || confirmTimedOut {
			continue
		}

		findings = append(findings, Finding{
			Class:               ClassTECL,
			MutationDescription: m.Description,
			HeaderName:          m.HeaderName,
			HeaderValue:         m.HeaderValue,
			ResponseTime:        tProbe,
			BaselineTime:        tBase,
			Ratio:               ratio(tProbe, tBase),
			Reason:              v.reason,
			RawRequest:          rawProbe,
			ConfirmRawRequest:   rawConfirm,
		})

		if opts.ExitFirst {
			return findings, errs
		}
	}
	return findings, errs
}

func (e TECLEngine) baseline(ctx context.Context, target wire.Target, opts ScanOptions, clk Clock) (time.Duration, int, error) {
	tr := e.newTransport(target, opts)
	if err := tr.Connect(ctx); err != nil {
		return 0, 0, err
	}
	defer tr.Close()

	headers := []wire.HeaderPair{{Name: "Host", Value: target.Host}}
	t0 := clk.Now()
	info, _, _, err := tr.SendRequest(ctx, "GET", target.RequestPath(), headers, nil)
	elapsed := clk.Now().Sub(t0)
	if err != nil {
		return 0, 0, err
	}
	return elapsed, info.StatusCode, nil
}

// probe sends the 6-byte body "0\r\n\r\nX" with Content-Length: 6 and the
// mutation's Transfer-Encoding header. A front-end honoring
// Transfer-Encoding forwards only the 5-byte terminating chunk "0\r\n\r\n";
// a back-end honoring Content-Length then stalls waiting for the sixth byte.
func (e TECLEngine) probe(ctx context.Context, target wire.Target, m mutation.Mutation, opts ScanOptions, clk Clock) (time.Duration, bool, int, bool, []byte, error) {
	tr := e.newTransport(target, opts)
	if err := tr.Connect(ctx); err != nil {
		return 0, false, 0, false, nil, err
	}
	defer tr.Close()

	fixed := []wire.HeaderPair{
		{Name: "Host", Value: target.Host},
		{Name: "Content-Type", Value: "application/x-www-form-urlencoded"},
		{Name: "Content-Length", Value: "6"},
	}
	headers := mergeHeaders(fixed, wire.HeaderPair{Name: m.HeaderName, Value: m.HeaderValue}, m.ExtraHeaders, opts.CustomHeaders)
	body := []byte("0\r\n\r\nX")

	t0 := clk.Now()
	info, _, raw, err := tr.SendRequest(ctx, "POST", target.RequestPath(), headers, body)
	elapsed := clk.Now().Sub(t0)

	if err != nil {
		return elapsed, hrserr.IsTimeout(err), 0, false, raw, err
	}
	return elapsed, false, info.StatusCode, info.HasStatus, raw, nil
}

func (e TECLEngine) confirm(ctx context.Context, target wire.Target, m mutation.Mutation, opts ScanOptions, clk Clock) (time.Duration, bool, []byte, error) {
	tr := e.newTransport(target, opts)
	if err := tr.Connect(ctx); err != nil {
		return 0, false, nil, err
	}
	defer tr.Close()

	fixed := []wire.HeaderPair{
		{Name: "Host", Value: target.Host},
		{Name: "Content-Type", Value: "application/x-www-form-urlencoded"},
		{Name: "Content-Length", Value: "5"},
	}
	headers := mergeHeaders(fixed, wire.HeaderPair{Name: m.HeaderName, Value: m.HeaderValue}, m.ExtraHeaders, opts.CustomHeaders)
	body := []byte("0\r\n\r\nX")

	t0 := clk.Now()
	_, _, raw, err := tr.SendRequest(ctx, "POST", target.RequestPath(), headers, body)
	elapsed := clk.Now().Sub(t0)
	if err != nil {
		return elapsed, hrserr.IsTimeout(err), raw, err
	}
	return elapsed, false, raw, nil
}
