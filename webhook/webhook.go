package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Event types.
const (
	EventCrawlPage      = "crawl.page"
	EventCrawlCompleted = "crawl.completed"
	EventCrawlFailed    = "crawl.failed"
)

// SignatureHeader carries "sha256=<hex>" of the body when a secret is set.
const SignatureHeader = "X-Pesticrawl-Signature"

// Event is the payload sent to webhook endpoints.
type Event struct {
	Type      string `json:"type"`
	JobID     string `json:"job_id"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data"`
}

// NewEvent stamps an event with the current time.
func NewEvent(eventType, jobID string, data any) *Event {
	return &Event{
		Type:      eventType,
		JobID:     jobID,
		Timestamp: time.Now().Unix(),
		Data:      data,
	}
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Notifier delivers events with retries. The zero value is not usable; use New.
type Notifier struct {
	client  *http.Client
	timeout time.Duration
	delays  []time.Duration
	wg      sync.WaitGroup
}

// New creates a Notifier whose attempts are bounded by timeout. Failed
// deliveries are retried after 1s, 5s and 30s.
func New(timeout time.Duration) *Notifier {
	return &Notifier{
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
		delays:  []time.Duration{0, 1 * time.Second, 5 * time.Second, 30 * time.Second},
	}
}

// Deliver sends a webhook event synchronously.
func (n *Notifier) Deliver(ctx context.Context, url, secret string, event *Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Pesticrawl-Webhook/1.0")
	if secret != "" {
		req.Header.Set(SignatureHeader, "sha256="+Sign(secret, body))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: deliver: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook: endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// DeliverAsync sends a webhook event in the background, retrying on failure.
// Independent calls may arrive in any order; use Stream when order matters.
func (n *Notifier) DeliverAsync(url, secret string, event *Event) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.deliverWithRetry(url, secret, event)
	}()
}

func (n *Notifier) deliverWithRetry(url, secret string, event *Event) bool {
	for attempt, delay := range n.delays {
		if delay > 0 {
			time.Sleep(delay)
		}
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		err := n.Deliver(ctx, url, secret, event)
		cancel()
		if err == nil {
			slog.Info("webhook delivered",
				"url", url,
				"event", event.Type,
				"job_id", event.JobID,
				"attempt", attempt+1,
			)
			return true
		}
		slog.Warn("webhook delivery failed",
			"url", url,
			"event", event.Type,
			"job_id", event.JobID,
			"attempt", attempt+1,
			"error", err,
		)
	}
	slog.Error("webhook delivery exhausted all retries",
		"url", url,
		"event", event.Type,
		"job_id", event.JobID,
	)
	return false
}

// Stream delivers the events of one job to one endpoint strictly in the
// order they were sent. An event is not attempted before the previous one
// was delivered or gave up retrying. Send never blocks.
type Stream struct {
	n      *Notifier
	url    string
	secret string

	mu     sync.Mutex
	queue  []*Event
	closed bool
	wake   chan struct{}
}

// Stream starts an ordered sender for url. Close it once the last event has
// been sent; Wait covers its pending deliveries.
func (n *Notifier) Stream(url, secret string) *Stream {
	s := &Stream{
		n:      n,
		url:    url,
		secret: secret,
		wake:   make(chan struct{}, 1),
	}
	n.wg.Add(1)
	go s.run()
	return s
}

// Send queues event behind every event sent before it. Events sent after
// Close are dropped.
func (s *Stream) Send(event *Event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		slog.Warn("webhook stream closed, dropping event", "event", event.Type, "job_id", event.JobID)
		return
	}
	s.queue = append(s.queue, event)
	s.mu.Unlock()
	s.signal()
}

// Close lets the sender exit after draining the queue.
func (s *Stream) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.signal()
}

func (s *Stream) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Stream) run() {
	defer s.n.wg.Done()
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return
			}
			<-s.wake
			continue
		}
		event := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		s.n.deliverWithRetry(s.url, s.secret, event)
	}
}

// Wait blocks until every pending asynchronous delivery has finished,
// including the queues of closed streams.
func (n *Notifier) Wait() {
	n.wg.Wait()
}
