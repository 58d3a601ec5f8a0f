// Package linkpreview extracts title, description and image metadata from
// an HTML page.
package linkpreview

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	defaultTimeout  = 5 * time.Second
	defaultMaxBytes = 1 << 20
	userAgent       = "polygram-linkpreview/1.0"
)

var ErrPrivateAddress = errors.New("link preview target resolves to a private address")

type Preview struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Image       string `json:"image,omitempty"`
	SiteName    string `json:"siteName,omitempty"`
}

type Options struct {
	Timeout  time.Duration
	MaxBytes int64
	// AllowPrivate permits loopback and private network targets.
	AllowPrivate bool
}

// Fetcher downloads pages and parses their preview metadata.
type Fetcher struct {
	client   *http.Client
	maxBytes int64
}

func NewFetcher(opts Options) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = defaultMaxBytes
	}
	dialer := &net.Dialer{Timeout: opts.Timeout}
	if !opts.AllowPrivate {
		dialer.Control = rejectPrivate
	}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: opts.Timeout,
		MaxIdleConns:        10,
		IdleConnTimeout:     30 * time.Second,
	}
	return &Fetcher{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return errors.New("too many redirects")
				}
				return nil
			},
		},
		maxBytes: opts.MaxBytes,
	}
}

func rejectPrivate(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	ip := net.ParseIP(host)
	if ip == nil || ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified() || ip.IsMulticast() {
		return ErrPrivateAddress
	}
	return nil
}

// ValidURL reports whether raw is an absolute http(s) URL.
func ValidURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Fetch downloads rawURL and returns its preview.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (Preview, error) {
	if !ValidURL(rawURL) {
		return Preview{}, fmt.Errorf("invalid url %q", rawURL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSpace(rawURL), nil)
	if err != nil {
		return Preview{}, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	resp, err := f.client.Do(req)
	if err != nil {
		return Preview{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return Preview{}, fmt.Errorf("fetch returned %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		mediaType, _, err := mime.ParseMediaType(ct)
		if err == nil && mediaType != "text/html" && mediaType != "application/xhtml+xml" {
			return Preview{}, fmt.Errorf("unsupported content type %q", mediaType)
		}
	}
	preview, err := Parse(io.LimitReader(resp.Body, f.maxBytes), resp.Request.URL)
	if err != nil {
		return Preview{}, err
	}
	return preview, nil
}

// Parse reads preview metadata from an HTML document located at base.
// OpenGraph properties win over plain meta tags and <title>.
func Parse(r io.Reader, base *url.URL) (Preview, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return Preview{}, fmt.Errorf("parse html: %w", err)
	}
	meta := make(map[string]string)
	var title string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Title:
				if title == "" && n.FirstChild != nil {
					title = strings.TrimSpace(n.FirstChild.Data)
				}
			case atom.Meta:
				key, content := metaPair(n)
				if key != "" && content != "" {
					if _, exists := meta[key]; !exists {
						meta[key] = content
					}
				}
			case atom.Body:
				// metadata lives in <head>; stop before walking the body
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	p := Preview{
		Title:       firstNonEmpty(meta["og:title"], meta["twitter:title"], title),
		Description: firstNonEmpty(meta["og:description"], meta["twitter:description"], meta["description"]),
		Image:       firstNonEmpty(meta["og:image"], meta["twitter:image"]),
		SiteName:    meta["og:site_name"],
	}
	if base != nil {
		p.URL = base.String()
		if p.Image != "" {
			if ref, err := base.Parse(p.Image); err == nil {
				p.Image = ref.String()
			}
		}
		if p.SiteName == "" {
			p.SiteName = base.Hostname()
		}
	}
	if p.Title == "" && p.Description == "" && p.Image == "" {
		return Preview{}, errors.New("no preview metadata found")
	}
	return p, nil
}

func metaPair(n *html.Node) (string, string) {
	var key, content string
	for _, attr := range n.Attr {
		switch strings.ToLower(attr.Key) {
		case "property", "name":
			if key == "" {
				key = strings.ToLower(strings.TrimSpace(attr.Val))
			}
		case "content":
			content = strings.TrimSpace(attr.Val)
		}
	}
	return key, content
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
