package mutation

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultCatalogueContainsIdentity(t *testing.T) {
	cat := Default()
	found := false
	for _, m := range cat {
		if m.HeaderName == "Transfer-Encoding" && m.HeaderValue == "chunked" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected default catalogue to contain the identity chunked mutation")
	}
}

func TestLoadFileDecodesControlBytes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mutations.json")
	contents := `[
		{"description": "CRLF in value", "header_name": "X-Test", "header_value": "a\r\nb"},
		{"description": "with extra", "header_name": "Transfer-Encoding", "header_value": "chunked",
		 "extra_headers": [{"header_name": "X-Extra", "header_value": "v"}]}
	]`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	cat, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(cat) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(cat))
	}
	if cat[0].HeaderValue != "a\r\nb" {
		t.Fatalf("expected decoded CRLF bytes, got %q", cat[0].HeaderValue)
	}
	if len(cat[1].ExtraHeaders) != 1 || cat[1].ExtraHeaders[0].Name != "X-Extra" {
		t.Fatalf("expected one extra header, got %+v", cat[1].ExtraHeaders)
	}
}
