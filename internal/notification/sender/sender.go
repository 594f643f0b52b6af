// Package sender delivers rendered notifications. Every failure a sender
// returns is retryable and carries dErrors.CodeTransientDelivery.
package sender

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"auditgov/internal/notification/models"
	dErrors "auditgov/pkg/domain-errors"
	"auditgov/pkg/platform/circuit"
)

// Publisher is the Kafka producer surface KafkaSender needs.
type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

// KafkaSender hands messages to the external mail/SMS gateway through a
// Kafka topic, keyed by recipient so one recipient's messages stay ordered.
type KafkaSender struct {
	publisher Publisher
	topic     string
}

func NewKafkaSender(publisher Publisher, topic string) *KafkaSender {
	return &KafkaSender{publisher: publisher, topic: topic}
}

func (s *KafkaSender) Send(ctx context.Context, msg models.Message) error {
	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification message: %w", err)
	}
	headers := map[string]string{
		"notification_type": string(msg.Type),
		"tenant_id":         msg.TenantID.String(),
	}
	if err := s.publisher.Publish(ctx, s.topic, []byte(msg.RecipientID.String()), value, headers); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTransientDelivery, "notification publish failed")
	}
	return nil
}

// LogSender writes messages to the log. Used when no broker is configured.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, msg models.Message) error {
	s.logger.InfoContext(ctx, "notification delivered",
		"tenant_id", msg.TenantID.String(),
		"recipient_id", msg.RecipientID.String(),
		"type", string(msg.Type),
		"subject", msg.Subject,
		"intents", len(msg.IntentIDs),
	)
	return nil
}

type next interface {
	Send(ctx context.Context, msg models.Message) error
}

// BreakerSender fails fast while the wrapped sender is known to be down.
// A rejected call still counts against the intent's attempts.
type BreakerSender struct {
	next    next
	breaker *circuit.Breaker
	logger  *slog.Logger
	now     func() time.Time
}

func NewBreakerSender(n next, breaker *circuit.Breaker, logger *slog.Logger) *BreakerSender {
	return &BreakerSender{next: n, breaker: breaker, logger: logger, now: time.Now}
}

func (s *BreakerSender) Send(ctx context.Context, msg models.Message) error {
	if !s.breaker.Allow(s.now()) {
		return dErrors.New(dErrors.CodeTransientDelivery, "delivery circuit "+s.breaker.Name()+" is open")
	}
	if err := s.next.Send(ctx, msg); err != nil {
		if _, change := s.breaker.RecordFailure(); change.Opened {
			s.logger.WarnContext(ctx, "delivery circuit opened",
				"breaker", s.breaker.Name(),
				"error", err,
			)
		}
		return err
	}
	if _, change := s.breaker.RecordSuccess(); change.Closed {
		s.logger.InfoContext(ctx, "delivery circuit closed", "breaker", s.breaker.Name())
	}
	return nil
}
