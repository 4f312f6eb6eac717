package detect

import (
	"context"
	"testing"
	"time"

	"github.com/vipinbihari/hrs-detector/internal/mutation"
)

func singleCatalogue() mutation.Catalogue {
	return mutation.Catalogue{
		{Description: "probe", HeaderName: "Transfer-Encoding", HeaderValue: "chunked", Placement: mutation.PlacementNormalHeader},
	}
}

func TestCLTEEngineReportsFindingOnElevatedRatio(t *testing.T) {
	addr := startHTTP1Fixture(t, []byte(okResponse))
	target := mustTarget(t, addr)

	clk := newFakeClock(100*time.Millisecond, 0, 500*time.Millisecond, 0, 50*time.Millisecond)
	opts := ScanOptions{Timeout: 2 * time.Second, ConnectTimeout: 2 * time.Second}

	findings, errs := CLTEEngine{}.Run(context.Background(), target, singleCatalogue(), opts, clk)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(findings) != 1 {
		t.Fatalf("expected 1 finding, got %d: %+v", len(findings), findings)
	}
	f := findings[0]
	if f.Ratio < 3 {
		t.Fatalf("expected ratio >= 3, got %f", f.Ratio)
	}
	if f.Reason == "" {
		t.Fatalf("expected a reason to be recorded")
	}
}

func TestCLTEEngineNoFindingOnFlatRatio(t *testing.T) {
	addr := startHTTP1Fixture(t, []byte(okResponse))
	target := mustTarget(t, addr)

	clk := newFakeClock(100*time.Millisecond, 0, 120*time.Millisecond)
	opts := ScanOptions{Timeout: 2 * time.Second, ConnectTimeout: 2 * time.Second}

	findings, errs := CLTEEngine{}.Run(context.Background(), target, singleCatalogue(), opts, clk)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(findings) != 0 {
		t.Fatalf("expected no findings for a 1.2x ratio, got %+v", findings)
	}
}

func TestCLTEEngineExitFirstStopsAfterOneFinding(t *testing.T) {
	addr := startHTTP1Fixture(t, []byte(okResponse))
	target := mustTarget(t, addr)

	cat := mutation.Catalogue{
		{Description: "first", HeaderName: "Transfer-Encoding", HeaderValue: "chunked"},
		{Description: "second", HeaderName: "Transfer-Encoding ", HeaderValue: "chunked"},
	}
	// baseline, probe#1 (triggers), confirm#1; probe#2/confirm#2 must never run.
	clk := newFakeClock(100*time.Millisecond, 0, 500*time.Millisecond, 0, 50*time.Millisecond)
	opts := ScanOptions{Timeout: 2 * time.Second, ConnectTimeout: 2 * time.Second, ExitFirst: true}

	findings, _ := CLTEEngine{}.Run(context.Background(), target, cat, opts, clk)
	if len(findings) != 1 {
		t.Fatalf("expected exactly 1 finding with exit_first, got %d", len(findings))
	}
	if findings[0].MutationDescription != "first" {
		t.Fatalf("expected the first mutation to be the one reported, got %q", findings[0].MutationDescription)
	}
}
