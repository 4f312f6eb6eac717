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

// CLTEEngine detects CL.TE desyncs: a front-end trusting Content-Length
// forwards a short prefix of a chunked body; the back-end, trusting
// Transfer-Encoding, keeps reading chunk data the front-end never sends.
type CLTEEngine struct{}

func (CLTEEngine) Class() Class { return ClassCLTE }

func (e CLTEEngine) newTransport(target wire.Target, opts ScanOptions) *transport1.Transport {
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

func (e CLTEEngine) Run(ctx context.Context, target wire.Target, cat mutation.Catalogue, opts ScanOptions, clk Clock) ([]Finding, []ProbeError) {
	var findings []Finding
	var errs []ProbeError

	tBase, _, baseErr := e.baseline(ctx, target, opts, clk)
	if baseErr != nil {
		errs = append(errs, ProbeError{Class: ClassCLTE, MutationDescription: "baseline", Err: baseErr})
		return findings, errs
	}

	for _, m := range cat {
		tProbe, timedOut, status, hasStatus, rawProbe, probeErr := e.probe(ctx, target, m, opts, clk)
		if probeErr != nil && !timedOut {
			errs = append(errs, ProbeError{Class: ClassCLTE, MutationDescription: m.Description, Err: probeErr})
			continue
		}

		v := classify(hasStatus, status, timedOut, tProbe, tBase)
		if !v.suspicious {
			continue
		}

		_, confirmTimedOut, rawConfirm, confirmErr := e.confirm(ctx, target, m, opts, clk)
		if confirmErr != nil || confirmTimedOut {
			// Both legs blocked (or the confirm itself errored): treat as
			// generic slowness / rate limiting, not a finding.
			continue
		}

		findings = append(findings, Finding{
			Class:               ClassCLTE,
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

func (e CLTEEngine) baseline(ctx context.Context, target wire.Target, opts ScanOptions, clk Clock) (time.Duration, int, error) {
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

func (e CLTEEngine) probe(ctx context.Context, target wire.Target, m mutation.Mutation, opts ScanOptions, clk Clock) (time.Duration, bool, int, bool, []byte, error) {
	tr := e.newTransport(target, opts)
	if err := tr.Connect(ctx); err != nil {
		return 0, false, 0, false, nil, err
	}
	defer tr.Close()

	fixed := []wire.HeaderPair{
		{Name: "Host", Value: target.Host},
		{Name: "Content-Type", Value: "application/x-www-form-urlencoded"},
		{Name: "Content-Length", Value: "4"},
	}
	headers := mergeHeaders(fixed, wire.HeaderPair{Name: m.HeaderName, Value: m.HeaderValue}, m.ExtraHeaders, opts.CustomHeaders)
	body := []byte("1\r\nZ\r\nQ\r\n")

	t0 := clk.Now()
	info, _, raw, err := tr.SendRequest(ctx, "POST", target.RequestPath(), headers, body)
	elapsed := clk.Now().Sub(t0)

	if err != nil {
		return elapsed, hrserr.IsTimeout(err), 0, false, raw, err
	}
	return elapsed, false, info.StatusCode, info.HasStatus, raw, nil
}

func (e CLTEEngine) confirm(ctx context.Context, target wire.Target, m mutation.Mutation, opts ScanOptions, clk Clock) (time.Duration, bool, []byte, error) {
	tr := e.newTransport(target, opts)
	if err := tr.Connect(ctx); err != nil {
		return 0, false, nil, err
	}
	defer tr.Close()

	fixed := []wire.HeaderPair{
		{Name: "Host", Value: target.Host},
		{Name: "Content-Type", Value: "application/x-www-form-urlencoded"},
		{Name: "Content-Length", Value: "11"},
	}
	headers := mergeHeaders(fixed, wire.HeaderPair{Name: m.HeaderName, Value: m.HeaderValue}, m.ExtraHeaders, opts.CustomHeaders)
	body := []byte("1\r\nZ\r\n0\r\n\r\n")

	t0 := clk.Now()
	_, _, raw, err := tr.SendRequest(ctx, "POST", target.RequestPath(), headers, body)
	elapsed := clk.Now().Sub(t0)
	if err != nil {
		return elapsed, hrserr.IsTimeout(err), raw, err
	}
	return elapsed, false, raw, nil
}
