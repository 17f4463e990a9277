package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Channel selects how a message is delivered.
const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

// Message is one queued delivery.
type Message struct {
	Channel string
	To      string // email address or phone number
	Subject string // ignored for SMS
	Body    string
}

// Mailer sends emails.
type Mailer interface {
	SendEmail(to, subject, body string) error
}

// SMSSender sends SMS messages.
type SMSSender interface {
	SendSMS(ctx context.Context, to, message string) error
}

const (
	queueSize   = 256
	maxAttempts = 3
	sendTimeout = 15 * time.Second
)

// Worker delivers queued messages on a single background goroutine with
// bounded retry. Enqueue never blocks the caller: delivery failure or a full
// queue is logged, never surfaced — a passcode stays valid even when its
// notification does not arrive, and resend covers the gap.
type Worker struct {
	mailer  Mailer
	sms     SMSSender
	queue   chan Message
	limiter *rate.Limiter
	backoff time.Duration
	wg      sync.WaitGroup
	once    sync.Once
}

// NewWorker builds a worker sending at most sendsPerSec deliveries per second.
// The sms sender may be nil when no SMS backend is configured.
func NewWorker(mailer Mailer, sms SMSSender, sendsPerSec float64) *Worker {
	return &Worker{
		mailer:  mailer,
		sms:     sms,
		queue:   make(chan Message, queueSize),
		limiter: rate.NewLimiter(rate.Limit(sendsPerSec), 1),
		backoff: time.Second,
	}
}

// Start launches the delivery loop. It drains the queue and returns when ctx
// is cancelled.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case <-ctx.Done():
				w.drain()
				return
			case msg := <-w.queue:
				w.deliver(ctx, msg)
			}
		}
	}()
}

// Enqueue hands a message to the worker. Returns false if the queue is full
// (the message is dropped with a log).
func (w *Worker) Enqueue(msg Message) bool {
	select {
	case w.queue <- msg:
		return true
	default:
		slog.Warn("notification queue full, dropping message", "channel", msg.Channel, "to", msg.To)
		return false
	}
}

// Close waits for the delivery loop to finish. Call after cancelling the
// Start context.
func (w *Worker) Close() {
	w.once.Do(func() { w.wg.Wait() })
}

func (w *Worker) deliver(ctx context.Context, msg Message) {
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := w.limiter.Wait(ctx); err != nil {
			return
		}
		err := w.send(msg)
		if err == nil {
			if attempt > 1 {
				slog.Info("notification delivered after retry", "channel", msg.Channel, "to", msg.To, "attempt", attempt)
			}
			return
		}
		slog.Warn("notification delivery failed", "channel", msg.Channel, "to", msg.To, "attempt", attempt, "err", err)
		if attempt < maxAttempts {
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Duration(attempt) * w.backoff):
			}
		}
	}
	slog.Error("notification dropped after retries", "channel", msg.Channel, "to", msg.To)
}

func (w *Worker) send(msg Message) error {
	switch msg.Channel {
	case ChannelSMS:
		if w.sms == nil {
			return fmt.Errorf("no SMS sender configured")
		}
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		return w.sms.SendSMS(ctx, msg.To, msg.Body)
	default:
		return w.mailer.SendEmail(msg.To, msg.Subject, msg.Body)
	}
}

// drain makes a best-effort pass over whatever is still queued at shutdown.
// Each message gets a single attempt.
func (w *Worker) drain() {
	for {
		select {
		case msg := <-w.queue:
			if err := w.send(msg); err != nil {
				slog.Warn("notification dropped at shutdown", "channel", msg.Channel, "to", msg.To, "err", err)
			}
		default:
			return
		}
	}
}
