package studio

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"vinestudio/internal/transport"
)

func TestParseManifestSingleRecord(t *testing.T) {
	pkgs, err := ParseManifest(strings.NewReader("v1\nfoo.zip\nabc123\n100\n50\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := []Package{{Name: "foo.zip", Hash: "abc123", Size: 100, PackedSize: 50}}
	if !reflect.DeepEqual(pkgs, want) {
		t.Fatalf("got %+v want %+v", pkgs, want)
	}
}

func TestParseManifestBlankLinesAndLenientNumbers(t *testing.T) {
	input := "v0\r\n\r\na.zip\r\nh1\r\n10\r\n5\r\n\r\n\r\n  b.zip \r\nh2\r\nlots\r\n-\r\n"
	pkgs, err := ParseManifest(strings.NewReader(input))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(pkgs) != 2 {
		t.Fatalf("expected 2 packages, got %d", len(pkgs))
	}
	if pkgs[1].Name != "b.zip" || pkgs[1].Size != 0 || pkgs[1].PackedSize != 0 {
		t.Fatalf("unexpected second package %+v", pkgs[1])
	}
}

func TestParseManifestRecordCount(t *testing.T) {
	var b strings.Builder
	b.WriteString("v0\n")
	for i := 0; i < 7; i++ {
		b.WriteString("p.zip\nhash\n1\n1\n")
	}
	pkgs, err := ParseManifest(strings.NewReader(b.String()))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(pkgs) != (1+7*4-1)/4 {
		t.Fatalf("expected 7 records, got %d", len(pkgs))
	}
}

func TestParseManifestErrors(t *testing.T) {
	if _, err := ParseManifest(strings.NewReader("")); !errors.Is(err, ErrManifestParse) {
		t.Fatalf("expected parse error for missing header, got %v", err)
	}
	if _, err := ParseManifest(strings.NewReader("v0\nfoo.zip\nabc\n")); !errors.Is(err, ErrManifestParse) {
		t.Fatalf("expected parse error for truncated record, got %v", err)
	}
	pkgs, err := ParseManifest(strings.NewReader("v0\n"))
	if err != nil || len(pkgs) != 0 {
		t.Fatalf("header-only manifest should be empty, got %v (%v)", pkgs, err)
	}
}

func TestClientManifestAndURLs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/version-abc-rbxPkgManifest.txt" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("v0\nRobloxStudio.zip\nh\n1\n1\n"))
	}))
	defer srv.Close()

	c := NewClient(transport.New(), srv.URL)
	if got := c.PackageURL("version-abc", "ssl.zip"); got != srv.URL+"/version-abc-ssl.zip" {
		t.Fatalf("unexpected package url %s", got)
	}
	pkgs, err := c.Manifest(context.Background(), "version-abc")
	if err != nil || len(pkgs) != 1 {
		t.Fatalf("manifest: %v %v", pkgs, err)
	}
	if _, err := c.Manifest(context.Background(), "version-missing"); !errors.Is(err, ErrManifestFetch) {
		t.Fatalf("expected ErrManifestFetch, got %v", err)
	}
}

func TestClientDefaultCDN(t *testing.T) {
	c := NewClient(nil, "")
	if got := c.ManifestURL("version-1"); got != "https://setup.rbxcdn.com/version-1-rbxPkgManifest.txt" {
		t.Fatalf("unexpected manifest url %s", got)
	}
}

func TestLatestVersionChannel(t *testing.T) {
	var queries []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		queries = append(queries, r.URL.RawQuery)
		_, _ = w.Write([]byte(`{"version":"0.600","clientVersionUpload":"version-deadbeef"}`))
	}))
	defer srv.Close()

	c := NewClient(transport.New(), "")
	c.VersionAPI = srv.URL
	for _, channel := range []string{"production", "zbeta"} {
		v, err := c.LatestVersion(context.Background(), channel)
		if err != nil || v != "version-deadbeef" {
			t.Fatalf("latest for %s: %q %v", channel, v, err)
		}
	}
	if !reflect.DeepEqual(queries, []string{"", "channel=zbeta"}) {
		t.Fatalf("unexpected queries %q", queries)
	}
}
