package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// GradingEvent announces that an exam result was written.
type GradingEvent struct {
	ExamID      uint      `json:"exam_id"`
	StudentName string    `json:"student_name"`
	Score       float64   `json:"score"`
	Degraded    bool      `json:"degraded"`
	Operation   string    `json:"operation"`
	GradedAt    time.Time `json:"graded_at"`
}

// GradingEventPublisher fans grading events out to other services.
type GradingEventPublisher interface {
	Publish(ctx context.Context, event GradingEvent) error
}

type natsGradingEventPublisher struct {
	conn    *nats.Conn
	subject string
}

// NewNATSGradingEventPublisher publishes events on the given subject. It
// returns nil when no connection is configured.
func NewNATSGradingEventPublisher(conn *nats.Conn, subject string) GradingEventPublisher {
	if conn == nil {
		return nil
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		subject = "exams.graded"
	}
	return &natsGradingEventPublisher{conn: conn, subject: subject}
}

func (p *natsGradingEventPublisher) Publish(_ context.Context, event GradingEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode grading event: %w", err)
	}
	return p.conn.Publish(p.subject, payload)
}
