// Package webhooks delivers signed task events to registered subscribers.
//
// Fire never blocks on network I/O: payloads are built and signed on the
// caller's goroutine, then handed to a fixed pool of workers through a
// bounded queue. A full queue drops the delivery. Failures are logged and
// counted, never retried, and never returned to the caller.
package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/valter-silva-au/agentjobs/internal/storage"
	"github.com/valter-silva-au/agentjobs/pkg/models"
)

// Headers set on every delivery.
const (
	HeaderSignature = "X-Hub-Signature-256"
	HeaderEvent     = "X-AgentJobs-Event"
	HeaderDelivery  = "X-AgentJobs-Delivery"
)

const (
	defaultWorkers   = 4
	defaultQueueSize = 256
	defaultTimeout   = 10 * time.Second

	// maxResponseBody bounds how much of a receiver's response is drained.
	maxResponseBody = 64 << 10
)

// EventLogger records delivery outcomes in the event log.
type EventLogger interface {
	LogEvent(eventType string, data map[string]any) error
}

// Options configures a Dispatcher. Zero values select the defaults.
type Options struct {
	Workers   int
	QueueSize int
	Timeout   time.Duration
	Client    *http.Client
	Logger    *slog.Logger
	Metrics   *DeliveryMetrics
	Events    EventLogger
}

// DeliveryResult describes one delivery attempt.
type DeliveryResult struct {
	SubscriptionID string
	DeliveryID     string
	Event          models.EventType
	StatusCode     int
	Duration       time.Duration
	Err            error
}

// OK reports whether the receiver answered with a 2xx status.
func (r DeliveryResult) OK() bool {
	return r.Err == nil
}

type delivery struct {
	id    string
	sub   models.Subscription
	event models.EventType
	body  []byte
}

// Dispatcher manages subscriptions and delivers events to them.
type Dispatcher struct {
	subs    storage.SubscriptionStore
	client  *http.Client
	timeout time.Duration
	logger  *slog.Logger
	metrics *DeliveryMetrics
	events  EventLogger
	now     func() time.Time

	mu     sync.RWMutex
	closed bool
	queue  chan delivery
	wg     sync.WaitGroup
}

// NewDispatcher starts a Dispatcher backed by subs. Call Close to drain the
// queue and stop the workers.
func NewDispatcher(subs storage.SubscriptionStore, opts Options) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Client == nil {
		opts.Client = &http.Client{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	d := &Dispatcher{
		subs:    subs,
		client:  opts.Client,
		timeout: opts.Timeout,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		events:  opts.Events,
		now:     time.Now,
		queue:   make(chan delivery, opts.QueueSize),
	}
	for i := 0; i < opts.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Fire queues event for every active subscription that wants it. It returns
// once the deliveries are queued or dropped.
func (d *Dispatcher) Fire(event models.EventType, task *models.Task, meta models.EventMetadata) {
	subs, err := d.subs.List()
	if err != nil {
		d.logger.Warn("listing webhook subscriptions", "event", event, "err", err)
		return
	}

	var targets []models.Subscription
	for i := range subs {
		if subs[i].Wants(event) {
			targets = append(targets, subs[i])
		}
	}
	if len(targets) == 0 {
		return
	}

	body, err := encodePayload(models.Event{
		Event:          event,
		Timestamp:      d.now().UTC(),
		Task:           task.PayloadSnapshot(),
		TriggeredBy:    meta.TriggeredBy,
		Action:         meta.Action,
		PreviousStatus: meta.PreviousStatus,
	})
	if err != nil {
		d.logger.Warn("encoding webhook payload", "event", event, "err", err)
		return
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, sub := range targets {
		job := delivery{id: newDeliveryID(), sub: sub, event: event, body: body}
		if d.closed {
			d.drop(job, "closed")
			continue
		}
		select {
		case d.queue <- job:
		default:
			d.drop(job, "queue_full")
		}
	}
}

// Test synchronously sends a webhook.test event to one subscription,
// whether or not it is active. A failed delivery is returned as an error
// wrapping models.ErrDeliveryFailure alongside the result.
func (d *Dispatcher) Test(ctx context.Context, id string) (DeliveryResult, error) {
	sub, err := d.subs.Get(id)
	if err != nil {
		return DeliveryResult{}, fmt.Errorf("testing webhook %s: %w", id, err)
	}
	body, err := encodePayload(models.Event{
		Event:       models.EventWebhookTest,
		Timestamp:   d.now().UTC(),
		Task:        map[string]any{},
		TriggeredBy: "system",
		Action:      "test",
	})
	if err != nil {
		return DeliveryResult{}, fmt.Errorf("testing webhook %s: %w", id, err)
	}

	result := d.deliver(ctx, delivery{id: newDeliveryID(), sub: *sub, event: models.EventWebhookTest, body: body})
	if result.Err != nil {
		return result, fmt.Errorf("testing webhook %s: %w", id, result.Err)
	}
	return result, nil
}

// CreateSubscription registers a new active subscription. An empty secret
// is replaced with a generated one.
func (d *Dispatcher) CreateSubscription(url string, events []models.EventType, secret string) (*models.Subscription, error) {
	if secret == "" {
		secret = GenerateSecret()
	}
	sub := models.Subscription{
		ID:      newSubscriptionID(),
		URL:     strings.TrimSpace(url),
		Events:  dedupeEvents(events),
		Secret:  secret,
		Active:  true,
		Created: d.now().UTC(),
	}
	if err := sub.Validate(); err != nil {
		return nil, fmt.Errorf("creating webhook: %w", err)
	}
	if err := d.subs.Add(sub); err != nil {
		return nil, fmt.Errorf("creating webhook: %w", err)
	}
	d.logger.Info("webhook created", "subscription_id", sub.ID, "url", sub.URL)
	return &sub, nil
}

// ListSubscriptions returns every subscription ordered by creation time.
func (d *Dispatcher) ListSubscriptions() ([]models.Subscription, error) {
	subs, err := d.subs.List()
	if err != nil {
		return nil, fmt.Errorf("listing webhooks: %w", err)
	}
	return subs, nil
}

// DeleteSubscription removes a subscription. Deliveries already queued for
// it are still attempted.
func (d *Dispatcher) DeleteSubscription(id string) error {
	if err := d.subs.Remove(id); err != nil {
		return fmt.Errorf("deleting webhook %s: %w", id, err)
	}
	d.logger.Info("webhook deleted", "subscription_id", id)
	return nil
}

// Close stops accepting events and waits for queued deliveries to finish.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for job := range d.queue {
		d.deliver(context.Background(), job)
	}
}

// deliver performs one POST with the dispatcher's timeout and records the
// outcome. It never returns an error to the caller; failures are in the
// result.
func (d *Dispatcher) deliver(ctx context.Context, job delivery) DeliveryResult {
	result := DeliveryResult{SubscriptionID: job.sub.ID, DeliveryID: job.id, Event: job.event}
	start := time.Now()

	result.StatusCode, result.Err = d.post(ctx, job)
	result.Duration = time.Since(start)

	if result.Err != nil {
		d.logger.Warn("webhook delivery failed",
			"subscription_id", job.sub.ID, "delivery_id", job.id, "event", job.event, "err", result.Err)
		d.metrics.recordAttempt(ctx, job.event, outcomeFailed, result.Duration)
		d.logEvent("webhook.failed", result)
		return result
	}

	if err := d.subs.MarkTriggered(job.sub.ID, d.now().UTC()); err != nil && !errors.Is(err, models.ErrNotFound) {
		d.logger.Warn("recording webhook trigger", "subscription_id", job.sub.ID, "err", err)
	}
	d.logger.Debug("webhook delivered",
		"subscription_id", job.sub.ID, "delivery_id", job.id, "event", job.event, "status", result.StatusCode)
	d.metrics.recordAttempt(ctx, job.event, outcomeDelivered, result.Duration)
	d.logEvent("webhook.delivered", result)
	return result
}

func (d *Dispatcher) post(ctx context.Context, job delivery) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, job.sub.URL, bytes.NewReader(job.body))
	if err != nil {
		return 0, fmt.Errorf("%w: building request: %w", models.ErrDeliveryFailure, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderSignature, Sign(job.sub.Secret, job.body))
	req.Header.Set(HeaderEvent, string(job.event))
	req.Header.Set(HeaderDelivery, job.id)

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: posting to %s: %w", models.ErrDeliveryFailure, job.sub.URL, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBody))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, fmt.Errorf("%w: %s returned status %d", models.ErrDeliveryFailure, job.sub.URL, resp.StatusCode)
	}
	return resp.StatusCode, nil
}

func (d *Dispatcher) drop(job delivery, reason string) {
	d.logger.Warn("webhook delivery dropped",
		"subscription_id", job.sub.ID, "event", job.event, "reason", reason)
	d.metrics.recordDrop(context.Background(), job.event, reason)
}

func (d *Dispatcher) logEvent(eventType string, r DeliveryResult) {
	if d.events == nil {
		return
	}
	data := map[string]any{
		"subscription_id": r.SubscriptionID,
		"delivery_id":     r.DeliveryID,
		"event":           string(r.Event),
		"status_code":     r.StatusCode,
		"duration_ms":     r.Duration.Milliseconds(),
	}
	if r.Err != nil {
		data["error"] = r.Err.Error()
	}
	if err := d.events.LogEvent(eventType, data); err != nil {
		d.logger.Warn("writing event log", "event", eventType, "err", err)
	}
}

// Sign returns the X-Hub-Signature-256 value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether header is the signature of body under secret. The
// comparison runs in constant time.
func Verify(secret string, body []byte, header string) bool {
	return hmac.Equal([]byte(Sign(secret, body)), []byte(header))
}

// GenerateSecret returns a random 32-character hex secret.
func GenerateSecret() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func newSubscriptionID() string {
	return "wh_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

func newDeliveryID() string {
	return uuid.NewString()
}

// encodePayload renders the event as compact JSON with object keys sorted,
// so the signed bytes are reproducible.
func encodePayload(ev models.Event) ([]byte, error) {
	raw, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}

func dedupeEvents(events []models.EventType) []models.EventType {
	seen := make(map[models.EventType]bool, len(events))
	var out []models.EventType
	for _, e := range events {
		e = models.EventType(strings.TrimSpace(string(e)))
		if seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	return out
}
