package identify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrUnreachable signals that a candidate page could not be fetched at all
// (network failure, timeout, non-success status). Callers must treat it
// distinctly from "fetched but not textual".
var ErrUnreachable = errors.New("page unreachable")

const defaultUserAgent = "Mozilla/5.0 (compatible; PartFinder/1.0)"

// Fetcher retrieves candidate pages and product images with short timeouts.
// All methods degrade to errors, never panics; redirects are followed.
type Fetcher struct {
	client       *http.Client
	pageTimeout  time.Duration
	imageTimeout time.Duration
	maxBodyBytes int64
	maxImgBytes  int64
	userAgent    string
}

// NewFetcher builds a Fetcher from config. A nil client falls back to a
// plain http.Client; cmd/api injects an otelhttp-instrumented one.
func NewFetcher(cfg Config, client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{}
	}
	return &Fetcher{
		client:       client,
		pageTimeout:  cfg.FetchTimeout,
		imageTimeout: cfg.FetchTimeout,
		maxBodyBytes: cfg.MaxBodyBytes,
		maxImgBytes:  cfg.MaxImageBytes,
		userAgent:    defaultUserAgent,
	}
}

// FetchHTML issues a GET and returns the body truncated to the configured
// cap, but only when the response is HTML/XHTML. Non-HTML content types
// yield an empty string with a nil error ("fetched, just not textual").
// Any transport failure or non-200 status yields ErrUnreachable.
func (f *Fetcher) FetchHTML(ctx context.Context, rawURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.pageTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", ErrUnreachable, resp.StatusCode)
	}

	ct := strings.ToLower(resp.Header.Get("Content-Type"))
	if !strings.Contains(ct, "text/html") && !strings.Contains(ct, "application/xhtml") {
		return "", nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	return string(body), nil
}

// FetchImage downloads an image, gated on an image/* content type and the
// configured size cap. Returns nil bytes with an error on any failure.
func (f *Fetcher) FetchImage(ctx context.Context, rawURL string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.imageTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrUnreachable, resp.StatusCode)
	}

	ct := resp.Header.Get("Content-Type")
	if idx := strings.IndexByte(ct, ';'); idx >= 0 {
		ct = strings.TrimSpace(ct[:idx])
	}
	if !strings.HasPrefix(ct, "image/") {
		return nil, fmt.Errorf("not an image: %s", ct)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxImgBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	return data, nil
}
