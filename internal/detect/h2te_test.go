package detect

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/vipinbihari/hrs-detector/internal/mutation"
	"github.com/vipinbihari/hrs-detector/internal/wire"
)

func TestH2TEEngineReportsFindingOnElevatedRatio(t *testing.T) {
	addr := startH2FixtureForTest(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
	})
	target := wire.Target{Host: "127.0.0.1", Port: addr.Port, TLS: true, Path: "/"}

	clk := newFakeClock(50*time.Millisecond, 0, 300*time.Millisecond)
	opts := ScanOptions{Timeout: 2 * time.Second, ConnectTimeout: 2 * time.Second}

	findings, errs := H2TEEngine{}.Run(context.Background(), target, singleCatalogue(), opts, clk)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(findings) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(findings))
	}
	if findings[0].Warning != "" {
		t.Fatalf("normal_header placement should carry no warning, got %q", findings[0].Warning)
	}
}

func TestH2TEEngineRequestLinePlacementCarriesWarning(t *testing.T) {
	addr := startH2FixtureForTest(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
	})
	target := wire.Target{Host: "127.0.0.1", Port: addr.Port, TLS: true, Path: "/"}

	clk := newFakeClock(50*time.Millisecond, 0, 300*time.Millisecond)
	opts := ScanOptions{Timeout: 2 * time.Second, ConnectTimeout: 2 * time.Second}

	findings, _ := H2TEEngine{}.Run(context.Background(), target, mutation.Default()[2:], opts, clk)
	if len(findings) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(findings))
	}
	if findings[0].Warning == "" {
		t.Fatalf("expected request_line placement to carry a warning")
	}
}
