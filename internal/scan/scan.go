// Package scan dispatches the per-class detection engines in internal/detect
// against one target and aggregates their findings and errors into a single
// result, the only entry point the external collaborators (CLI, web UI)
// named in the design are meant to call.
package scan

import (
	"context"

	"github.com/vipinbihari/hrs-detector/internal/detect"
	"github.com/vipinbihari/hrs-detector/internal/mutation"
	"github.com/vipinbihari/hrs-detector/internal/wire"
)

// Result is the aggregate outcome of one scan across every requested class.
type Result struct {
	Findings []detect.Finding
	Errors   []detect.ProbeError
}

// engines maps each Class to the Engine that implements it.
func engines() map[detect.Class]detect.Engine {
	return map[detect.Class]detect.Engine{
		detect.ClassCLTE: detect.CLTEEngine{},
		detect.ClassTECL: detect.TECLEngine{},
		detect.ClassH2TE: detect.H2TEEngine{},
		detect.ClassH2CL: detect.H2CLEngine{},
	}
}

// Run executes classes in the given order against target, using cat as the
// shared mutation catalogue and clk as the wall-clock source. When
// opts.ExitFirst is set, a finding in one class also stops dispatch to the
// classes after it — exit_first means "stop scanning the moment something is
// found", not merely "stop this one class's mutation loop". When
// opts.H2PayloadPlacement is set, the HTTP/2 classes only receive the
// catalogue entries with that placement; HTTP/1 classes get the full
// catalogue.
func Run(ctx context.Context, target wire.Target, classes []detect.Class, cat mutation.Catalogue, opts detect.ScanOptions, clk detect.Clock) Result {
	reg := engines()
	var result Result

	for _, c := range classes {
		eng, ok := reg[c]
		if !ok {
			continue
		}
		engCat := cat
		if opts.H2PayloadPlacement != nil && (c == detect.ClassH2TE || c == detect.ClassH2CL) {
			engCat = nil
			for _, m := range cat {
				if m.Placement == *opts.H2PayloadPlacement {
					engCat = append(engCat, m)
				}
			}
		}
		findings, errs := eng.Run(ctx, target, engCat, opts, clk)
		result.Findings = append(result.Findings, findings...)
		result.Errors = append(result.Errors, errs...)

		if opts.ExitFirst && len(findings) > 0 {
			return result
		}
	}
	return result
}
