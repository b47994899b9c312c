package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"

	"github.com/use-agent/pesticrawl/crawler"
	"github.com/use-agent/pesticrawl/extract"
)

// actionTimeout caps every single browser call, even under a longer parent deadline.
const actionTimeout = 10 * time.Second

// ErrNoElement is returned when a selector matches nothing.
var ErrNoElement = errors.New("scraper: no matching element")

// Session drives one incognito page. It implements crawler.Session.
type Session struct {
	incognito *rod.Browser
	page      *rod.Page
	router    *rod.HijackRouter
	release   func()
}

var _ crawler.Session = (*Session)(nil)

func (s *Session) bind(ctx context.Context) (*rod.Page, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, actionTimeout)
	return s.page.Context(ctx), cancel
}

// Navigate loads url under the caller's deadline rather than actionTimeout.
func (s *Session) Navigate(ctx context.Context, url string) error {
	p := s.page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return err
	}
	return p.WaitLoad()
}

func (s *Session) Fill(ctx context.Context, selector, value string) error {
	p, cancel := s.bind(ctx)
	defer cancel()

	el, err := element(p, selector)
	if err != nil {
		return err
	}
	if err := el.SelectAllText(); err != nil {
		return err
	}
	return el.Input(value)
}

func (s *Session) Click(ctx context.Context, selector string) error {
	p, cancel := s.bind(ctx)
	defer cancel()

	el, err := element(p, selector)
	if err != nil {
		return err
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

func (s *Session) Exists(ctx context.Context, selector string) (bool, error) {
	p, cancel := s.bind(ctx)
	defer cancel()

	found, _, err := has(p, selector)
	return found, err
}

func (s *Session) Visible(ctx context.Context, selector string) (bool, error) {
	p, cancel := s.bind(ctx)
	defer cancel()

	found, el, err := has(p, selector)
	if err != nil || !found {
		return false, err
	}
	return el.Visible()
}

func (s *Session) Text(ctx context.Context, selector string) (string, error) {
	p, cancel := s.bind(ctx)
	defer cancel()

	found, el, err := has(p, selector)
	if err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("%w: %s", ErrNoElement, selector)
	}
	return el.Text()
}

func (s *Session) Attribute(ctx context.Context, selector, name string) (string, bool, error) {
	p, cancel := s.bind(ctx)
	defer cancel()

	found, el, err := has(p, selector)
	if err != nil || !found {
		return "", false, err
	}
	v, err := el.Attribute(name)
	if err != nil || v == nil {
		return "", false, err
	}
	return *v, true, nil
}

// Overlay snapshots the overlay's HTML. When selector matches an iframe the
// frame document is read, otherwise the element itself.
func (s *Session) Overlay(ctx context.Context, selector string) (crawler.Overlay, error) {
	p, cancel := s.bind(ctx)
	defer cancel()

	el, err := element(p, selector)
	if err != nil {
		return nil, err
	}

	var html string
	if frame, ferr := el.Frame(); ferr == nil {
		if err := frame.WaitLoad(); err != nil {
			return nil, fmt.Errorf("scraper: overlay frame load: %w", err)
		}
		html, err = frame.HTML()
	} else {
		html, err = el.HTML()
	}
	if err != nil {
		return nil, err
	}
	return snapshot(html)
}

// snapshot parses overlay HTML. A parse failure yields a nil interface, never
// a typed nil.
func snapshot(html string) (crawler.Overlay, error) {
	doc, err := extract.NewDocument(html)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Close stops interception and disposes the incognito context. It is safe to
// call more than once.
func (s *Session) Close() error {
	if s.page == nil {
		return nil
	}
	if s.router != nil {
		if err := s.router.Stop(); err != nil {
			slog.Debug("hijack router stop failed", "error", err)
		}
	}
	err := s.incognito.Close()
	s.page = nil
	if s.release != nil {
		s.release()
	}
	return err
}

func has(p *rod.Page, selector string) (bool, *rod.Element, error) {
	if crawler.IsXPath(selector) {
		return p.HasX(selector)
	}
	return p.Has(selector)
}

// element resolves selector, retrying until it appears or the page context ends.
func element(p *rod.Page, selector string) (*rod.Element, error) {
	var (
		el  *rod.Element
		err error
	)
	if crawler.IsXPath(selector) {
		el, err = p.ElementX(selector)
	} else {
		el, err = p.Element(selector)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: %s: %w", ErrNoElement, selector, err)
	}
	return el, err
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}
