package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	tls2 "github.com/refraction-networking/utls"
	"golang.org/x/net/html/charset"
	xproxy "golang.org/x/net/proxy"

	"github.com/use-agent/pesticrawl/crawler"
)

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// listingPageSize is the row count the flat listing is asked for.
const listingPageSize = 20

// HTTPFetcher posts listing queries with a Chrome TLS fingerprint (utls). It
// implements crawler.ListingFetcher.
type HTTPFetcher struct {
	baseURL string
	client  *http.Client
}

var _ crawler.ListingFetcher = (*HTTPFetcher)(nil)

// NewHTTPFetcher creates a fetcher for the listing at baseURL. proxy may be
// empty, an http(s) URL, or a socks5 URL.
func NewHTTPFetcher(baseURL, proxy string, timeout time.Duration) *HTTPFetcher {
	transport := &http.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialTLSChrome(ctx, network, addr, proxy)
		},
	}
	if proxy != "" {
		proxyURL, err := url.Parse(proxy)
		if err == nil && (proxyURL.Scheme == "http" || proxyURL.Scheme == "https") {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}

	jar, _ := cookiejar.New(nil)
	return &HTTPFetcher{
		baseURL: baseURL,
		client:  &http.Client{Transport: transport, Jar: jar, Timeout: timeout},
	}
}

// FetchListing returns the decoded HTML of one result page. Page 1 first
// visits the search page so the session cookie is set.
func (f *HTTPFetcher) FetchListing(ctx context.Context, query string, page int) (string, error) {
	if page == 1 {
		if err := f.warmUp(ctx); err != nil {
			return "", err
		}
	}

	form := url.Values{
		"method":           {"queryList"},
		"isproduct":        {"1"},
		"isactive":         {"2"},
		"activeEnameInput": {query},
		"pageSize":         {strconv.Itoa(listingPageSize)},
		"currentPage":      {strconv.Itoa(page)},
	}
	resp, err := f.send(ctx, http.MethodPost, form)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	r, err := charset.NewReader(resp.Body, resp.Header.Get("Content-Type"))
	if errors.Is(err, io.EOF) {
		return "", nil // empty body
	}
	if err != nil {
		return "", fmt.Errorf("httpfetch: decode body: %w", err)
	}
	raw, err := io.ReadAll(io.LimitReader(r, 10*1024*1024)) // 10 MB cap
	if err != nil {
		return "", fmt.Errorf("httpfetch: read body: %w", err)
	}
	return string(raw), nil
}

// warmUp loads the search page for its cookies only; the body is discarded.
func (f *HTTPFetcher) warmUp(ctx context.Context) error {
	resp, err := f.send(ctx, http.MethodGet, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 10*1024*1024))
	return nil
}

// send issues one request and rejects error statuses. The caller closes the
// body.
func (f *HTTPFetcher) send(ctx context.Context, method string, form url.Values) (*http.Response, error) {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, f.baseURL, body)
	if err != nil {
		return nil, fmt.Errorf("httpfetch: build request: %w", err)
	}
	req.Header.Set("User-Agent", chromeUA)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httpfetch: request failed: %w", err)
	}
	if resp.StatusCode >= 400 {
		resp.Body.Close()
		return nil, fmt.Errorf("httpfetch: HTTP %d for %s", resp.StatusCode, f.baseURL)
	}
	return resp, nil
}

// dialTLSChrome establishes a TLS connection using a Chrome fingerprint via
// utls. ALPN is pinned to http/1.1 since net/http cannot speak h2 over a
// custom dialer.
func dialTLSChrome(ctx context.Context, network, addr, proxy string) (net.Conn, error) {
	var rawConn net.Conn
	var err error

	dialer := &net.Dialer{}

	if proxyURL, perr := url.Parse(proxy); proxy != "" && perr == nil &&
		(proxyURL.Scheme == "socks5" || proxyURL.Scheme == "socks5h") {
		socks, serr := xproxy.FromURL(proxyURL, dialer)
		if serr != nil {
			return nil, fmt.Errorf("socks5 dialer: %w", serr)
		}
		if cd, ok := socks.(xproxy.ContextDialer); ok {
			rawConn, err = cd.DialContext(ctx, network, addr)
		} else {
			rawConn, err = socks.Dial(network, addr)
		}
		if err != nil {
			return nil, fmt.Errorf("socks5 dial: %w", err)
		}
	} else {
		rawConn, err = dialer.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}
	}

	hello, err := tls2.UTLSIdToSpec(tls2.HelloChrome_Auto)
	if err != nil {
		rawConn.Close()
		return nil, err
	}
	for _, ext := range hello.Extensions {
		if alpn, ok := ext.(*tls2.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
		}
	}

	host, _, _ := net.SplitHostPort(addr)
	tlsConn := tls2.UClient(rawConn, &tls2.Config{ServerName: host}, tls2.HelloCustom)
	if err := tlsConn.ApplyPreset(&hello); err != nil {
		rawConn.Close()
		return nil, err
	}
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		rawConn.Close()
		return nil, err
	}
	return tlsConn, nil
}
