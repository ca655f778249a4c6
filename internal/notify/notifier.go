package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/hackgods/clinic-queue-scheduling/pkg/logging"
)

// Kind names the message template the delivery side renders.
type Kind string

const (
	KindBookingConfirmed Kind = "booking_confirmed"
	KindWalkInToken      Kind = "walkin_token"
	KindBreakScheduled   Kind = "break_scheduled"
	KindBreakCancelled   Kind = "break_cancelled"
	KindNoShow           Kind = "no_show"
)

// Notifier hands a patient notification to the delivery side. Delivery
// (SMS, WhatsApp, push) happens elsewhere; callers log failures and move on.
type Notifier interface {
	Notify(ctx context.Context, patientID uuid.UUID, kind Kind, payload map[string]any) error
}

// StreamNotifier appends notifications to a Redis stream.
type StreamNotifier struct {
	client *redis.Client
	stream string
	maxLen int64
	now    func() time.Time
}

func NewStreamNotifier(client *redis.Client, stream string) *StreamNotifier {
	if client == nil {
		panic("notify: redis client required")
	}
	return &StreamNotifier{client: client, stream: stream, maxLen: 100000, now: time.Now}
}

func (n *StreamNotifier) Notify(ctx context.Context, patientID uuid.UUID, kind Kind, payload map[string]any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("notify: marshal payload: %w", err)
	}
	err = n.client.XAdd(ctx, &redis.XAddArgs{
		Stream: n.stream,
		MaxLen: n.maxLen,
		Approx: true,
		Values: map[string]any{
			"patient_id": patientID.String(),
			"kind":       string(kind),
			"payload":    string(data),
			"queued_at":  n.now().UTC().Format(time.RFC3339),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("notify: xadd %s: %w", n.stream, err)
	}
	return nil
}

// LogNotifier only logs. Used when no stream is configured.
type LogNotifier struct {
	logger *logging.Logger
}

func NewLogNotifier(logger *logging.Logger) *LogNotifier {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, patientID uuid.UUID, kind Kind, payload map[string]any) error {
	n.logger.InfoContext(ctx, "notification", "patient_id", patientID, "kind", kind, "payload", payload)
	return nil
}

// Send dispatches and logs any failure instead of returning it.
func Send(ctx context.Context, n Notifier, logger *logging.Logger, patientID uuid.UUID, kind Kind, payload map[string]any) {
	if n == nil {
		return
	}
	if err := n.Notify(ctx, patientID, kind, payload); err != nil && logger != nil {
		logger.Warn("notification dispatch failed", "patient_id", patientID, "kind", kind, "error", err)
	}
}
