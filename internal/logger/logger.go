package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Alerter receives error-level log messages, e.g. a Telegram chat.
type Alerter interface {
	SendAlert(ctx context.Context, msg string) error
}

// AlertHandler forwards records at ERROR and above to an Alerter before
// passing them to the wrapped handler. Alerts are queued and sent by a single
// worker, so logging never waits on the alert channel.
type AlertHandler struct {
	slog.Handler
	alerts *alertQueue
}

func (h *AlertHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelError && h.alerts != nil {
		h.alerts.push(r.Message)
	}
	return h.Handler.Handle(ctx, r)
}

func (h *AlertHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AlertHandler{Handler: h.Handler.WithAttrs(attrs), alerts: h.alerts}
}

func (h *AlertHandler) WithGroup(name string) slog.Handler {
	return &AlertHandler{Handler: h.Handler.WithGroup(name), alerts: h.alerts}
}

const alertQueueSize = 64

type alertQueue struct {
	alerter Alerter
	ch      chan string
}

func newAlertQueue(alerter Alerter) *alertQueue {
	q := &alertQueue{alerter: alerter, ch: make(chan string, alertQueueSize)}
	go q.run()
	return q
}

// push drops the alert when the queue is full; the record itself is still logged.
func (q *alertQueue) push(msg string) {
	select {
	case q.ch <- msg:
	default:
		os.Stderr.WriteString("alert queue full, dropped: " + msg + "\n")
	}
}

func (q *alertQueue) run() {
	for msg := range q.ch {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := q.alerter.SendAlert(ctx, msg); err != nil {
			// Write straight to stderr: logging here would recurse.
			os.Stderr.WriteString("failed to send alert: " + err.Error() + "\n")
		}
		cancel()
	}
}

// New builds a JSON logger writing to w. alerter may be nil.
func New(w io.Writer, level string, alerter Alerter) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	h := &AlertHandler{Handler: slog.NewJSONHandler(w, opts)}
	if alerter != nil {
		h.alerts = newAlertQueue(alerter)
	}
	return slog.New(h)
}

// ParseLevel maps debug/info/warn/error to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type ctxKey struct{}

func WithContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}
