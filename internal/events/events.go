// Package events publishes project lifecycle events over NATS.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"mentorship/common/metrics"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

type Type string

const (
	ProjectCreated      Type = "project.created"
	ProjectUpdated      Type = "project.updated"
	ProjectRemoved      Type = "project.removed"
	ProjectCompleted    Type = "project.completed"
	MembershipRequested Type = "membership.requested"
	MembershipCanceled  Type = "membership.canceled"
	MembershipAccepted  Type = "membership.accepted"
	MembershipRemoved   Type = "membership.removed"
)

type Event struct {
	Type       Type            `json:"type"`
	ProjectID  uuid.UUID       `json:"projectId"`
	UserID     *uuid.UUID      `json:"userId,omitempty"`
	OccurredAt time.Time       `json:"occurredAt"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// New builds an event stamped with the current time. A nil payload is omitted.
func New(t Type, projectID uuid.UUID, userID *uuid.UUID, payload interface{}) (Event, error) {
	e := Event{Type: t, ProjectID: projectID, UserID: userID, OccurredAt: time.Now().UTC()}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Event{}, err
		}
		e.Payload = raw
	}
	return e, nil
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

type NATSPublisher struct {
	conn    *nats.Conn
	prefix  string
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewNATSPublisher(url, prefix string, logger *slog.Logger, m *metrics.Metrics) (*NATSPublisher, error) {
	nc, err := nats.Connect(url, nats.Name("mentorship-project-service"))
	if err != nil {
		return nil, err
	}

	logger.Info("NATS publisher initialized", "url", url, "subject_prefix", prefix)

	return &NATSPublisher{
		conn:    nc,
		prefix:  prefix,
		logger:  logger,
		metrics: m,
	}, nil
}

// Subject returns the subject an event of type t is published on.
func (p *NATSPublisher) Subject(t Type) string {
	return p.prefix + "." + string(t)
}

func (p *NATSPublisher) Publish(ctx context.Context, event Event) error {
	subject := p.Subject(event.Type)

	data, err := json.Marshal(event)
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to marshal event", "type", event.Type, "error", err)
		return err
	}

	start := time.Now()
	err = p.conn.Publish(subject, data)
	p.metrics.Messaging.RecordPublish(ctx, subject, time.Since(start), err)
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to publish event", "subject", subject, "error", err)
		return err
	}

	p.logger.DebugContext(ctx, "event published", "subject", subject, "project_id", event.ProjectID)
	return nil
}

// Subscribe delivers every decoded event published under the prefix to fn.
func (p *NATSPublisher) Subscribe(fn func(Event)) (*nats.Subscription, error) {
	return p.conn.Subscribe(p.prefix+".>", func(msg *nats.Msg) {
		var event Event
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			p.logger.Error("failed to unmarshal event", "subject", msg.Subject, "error", err)
			return
		}
		fn(event)
	})
}

// HealthCheck verifies the NATS connection is alive by flushing pending data.
func (p *NATSPublisher) HealthCheck() error {
	return p.conn.FlushTimeout(2 * time.Second)
}

func (p *NATSPublisher) Close() error {
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
		return err
	}
	return nil
}

// Noop discards events. Used when NATS is disabled.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
