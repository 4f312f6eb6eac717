// Package detect implements the desync detection engine: the
// baseline/probe/confirm timing protocol per class, driven by a shared
// mutation catalogue. One file per class.
package detect

import (
	"context"
	"time"

	"github.com/vipinbihari/hrs-detector/internal/mutation"
	"github.com/vipinbihari/hrs-detector/internal/wire"
)

// Class tags which desync variant a Finding or Engine concerns.
type Class int

const (
	ClassCLTE Class = iota
	ClassTECL
	ClassH2TE
	ClassH2CL
)

func (c Class) String() string {
	switch c {
	case ClassCLTE:
		return "cl.te"
	case ClassTECL:
		return "te.cl"
	case ClassH2TE:
		return "h2.te"
	case ClassH2CL:
		return "h2.cl"
	default:
		return "unknown"
	}
}

// Clock is a monotonic wall-clock source, injected so tests can assert exact
// ratios without sleeping. Exactly two Now() calls bracket each probe: one
// just before the first byte is sent, one just after the last byte is parsed
// or the deadline fires.
type Clock interface {
	Now() time.Time
}

// SystemClock calls time.Now, which carries a monotonic reading on every
// platform Go supports — safe against NTP steps as long as only Sub is used.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// ScanOptions are the engine-facing knobs for one scan invocation.
type ScanOptions struct {
	Timeout             time.Duration
	ConnectTimeout      time.Duration
	ExitFirst           bool
	CustomHeaders       []wire.HeaderPair
	H2PayloadPlacement  *mutation.Placement
	VerifyCertificates  bool
}

// Finding is surfaced when a probe met the vulnerability criterion.
type Finding struct {
	Class                Class
	MutationDescription  string
	HeaderName           string
	HeaderValue          string
	Placement            mutation.Placement
	ResponseTime         time.Duration
	BaselineTime         time.Duration
	Ratio                float64
	Reason               string
	Warning              string
	RawRequest           []byte
	ConfirmRawRequest    []byte
}

// ProbeError records a probe that errored without producing a timeout —
// Findings never silently swallow these.
type ProbeError struct {
	Class                Class
	MutationDescription  string
	Err                  error
}

// Engine runs one class's detection protocol against one target.
type Engine interface {
	Class() Class
	Run(ctx context.Context, target wire.Target, cat mutation.Catalogue, opts ScanOptions, clk Clock) ([]Finding, []ProbeError)
}

// verdict is the Step 2 preliminary-suspicion outcome.
type verdict struct {
	suspicious bool
	reason     string
}

// classify applies the §4.5 Step 2 criteria: timeout is always suspicious;
// a 400/408/500 status with ratio >= 1.5 is suspicious; otherwise ratio >= 3
// is suspicious. tBase <= 0 never qualifies (there is nothing to compare
// against).
func classify(hasStatus bool, status int, timedOut bool, tProbe, tBase time.Duration) verdict {
	if timedOut {
		return verdict{true, "probe timed out"}
	}
	if tBase <= 0 {
		return verdict{}
	}
	ratio := float64(tProbe) / float64(tBase)
	if hasStatus && (status == 400 || status == 408 || status == 500) && ratio >= 1.5 {
		return verdict{true, "anomalous status with elevated latency"}
	}
	if ratio >= 3 {
		return verdict{true, "elevated latency"}
	}
	return verdict{}
}

func ratio(tProbe, tBase time.Duration) float64 {
	if tBase <= 0 {
		return 0
	}
	return float64(tProbe) / float64(tBase)
}

func mergeHeaders(fixed []wire.HeaderPair, mutationHeader wire.HeaderPair, extra, custom []wire.HeaderPair) []wire.HeaderPair {
	out := make([]wire.HeaderPair, 0, len(fixed)+1+len(extra)+len(custom))
	out = append(out, fixed...)
	out = append(out, mutationHeader)
	out = append(out, extra...)
	out = append(out, custom...)
	return out
}
