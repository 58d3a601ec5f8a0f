package linkpreview

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

const samplePage = `<!doctype html>
<html><head>
<title>Fallback title</title>
<meta property="og:title" content="Open Graph title">
<meta name="description" content="Plain description">
<meta property="og:image" content="/img/cover.png">
<meta property="og:site_name" content="Example">
</head><body><meta property="og:title" content="ignored"></body></html>`

func TestParsePrefersOpenGraph(t *testing.T) {
	base, _ := url.Parse("https://example.com/articles/1")
	p, err := Parse(strings.NewReader(samplePage), base)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p.Title != "Open Graph title" {
		t.Fatalf("unexpected title: %q", p.Title)
	}
	if p.Description != "Plain description" {
		t.Fatalf("unexpected description: %q", p.Description)
	}
	if p.Image != "https://example.com/img/cover.png" {
		t.Fatalf("expected absolute image url, got %q", p.Image)
	}
	if p.SiteName != "Example" || p.URL != "https://example.com/articles/1" {
		t.Fatalf("unexpected site or url: %+v", p)
	}
}

func TestParseFallsBackToTitleAndHost(t *testing.T) {
	base, _ := url.Parse("https://blog.example.org/")
	p, err := Parse(strings.NewReader("<html><head><title> Hello </title></head></html>"), base)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p.Title != "Hello" || p.SiteName != "blog.example.org" {
		t.Fatalf("unexpected preview: %+v", p)
	}
}

func TestParseRejectsEmptyDocument(t *testing.T) {
	if _, err := Parse(strings.NewReader("<html><body>nothing</body></html>"), nil); err == nil {
		t.Fatalf("expected error for page without metadata")
	}
}

func TestFetcherFetchesHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	p, err := NewFetcher(Options{AllowPrivate: true}).Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if p.Title != "Open Graph title" || !strings.HasPrefix(p.Image, srv.URL) {
		t.Fatalf("unexpected preview: %+v", p)
	}
}

func TestFetcherRejectsNonHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	if _, err := NewFetcher(Options{AllowPrivate: true}).Fetch(context.Background(), srv.URL); err == nil {
		t.Fatalf("expected non-html response to fail")
	}
}

func TestFetcherBlocksPrivateTargetsByDefault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	_, err := NewFetcher(Options{}).Fetch(context.Background(), srv.URL)
	if err == nil || !errors.Is(err, ErrPrivateAddress) {
		t.Fatalf("expected private address rejection, got %v", err)
	}
}

func TestValidURL(t *testing.T) {
	cases := map[string]bool{
		"https://example.com":  true,
		"http://example.com/a": true,
		"ftp://example.com":    false,
		"example.com":          false,
		"javascript:alert(1)":  false,
	}
	for raw, want := range cases {
		if got := ValidURL(raw); got != want {
			t.Fatalf("ValidURL(%q) = %v, want %v", raw, got, want)
		}
	}
}
