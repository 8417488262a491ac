package metrics

import (
	"context"

	"go.opentelemetry.io/otel/metric"
)

type Metrics struct {
	projectsCreated      metric.Int64Counter
	projectsRemoved      metric.Int64Counter
	projectsCompleted    metric.Int64Counter
	membershipsRequested metric.Int64Counter
	membershipsAccepted  metric.Int64Counter
	membershipsCanceled  metric.Int64Counter
	reviewsSkipped       metric.Int64Counter
}

func New(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
		unit string
	}{
		{&m.projectsCreated, "project_service.projects.created", "Total number of projects created", "{project}"},
		{&m.projectsRemoved, "project_service.projects.removed", "Total number of projects removed", "{project}"},
		{&m.projectsCompleted, "project_service.projects.completed", "Total number of projects completed", "{project}"},
		{&m.membershipsRequested, "project_service.memberships.requested", "Total number of participation requests", "{request}"},
		{&m.membershipsAccepted, "project_service.memberships.accepted", "Total number of accepted participants", "{request}"},
		{&m.membershipsCanceled, "project_service.memberships.canceled", "Total number of canceled or removed requests", "{request}"},
		{&m.reviewsSkipped, "project_service.reviews.skipped", "Review entries on completion with no membership record", "{review}"},
	}

	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name,
			metric.WithDescription(c.desc),
			metric.WithUnit(c.unit),
		)
		if err != nil {
			return nil, err
		}
		*c.dst = counter
	}

	return m, nil
}

func add(ctx context.Context, c metric.Int64Counter, n int64) {
	if c != nil && n > 0 {
		c.Add(ctx, n)
	}
}

func (m *Metrics) RecordProjectCreated(ctx context.Context) {
	if m != nil {
		add(ctx, m.projectsCreated, 1)
	}
}

func (m *Metrics) RecordProjectRemoved(ctx context.Context) {
	if m != nil {
		add(ctx, m.projectsRemoved, 1)
	}
}

// RecordProjectCompleted counts the completion and the reviews that matched no record.
func (m *Metrics) RecordProjectCompleted(ctx context.Context, skipped int) {
	if m != nil {
		add(ctx, m.projectsCompleted, 1)
		add(ctx, m.reviewsSkipped, int64(skipped))
	}
}

func (m *Metrics) RecordMembershipRequested(ctx context.Context) {
	if m != nil {
		add(ctx, m.membershipsRequested, 1)
	}
}

func (m *Metrics) RecordMembershipAccepted(ctx context.Context) {
	if m != nil {
		add(ctx, m.membershipsAccepted, 1)
	}
}

func (m *Metrics) RecordMembershipCanceled(ctx context.Context) {
	if m != nil {
		add(ctx, m.membershipsCanceled, 1)
	}
}

// NewMock creates a no-op Metrics instance for testing
// The returned Metrics will safely ignore all Record* calls
func NewMock() *Metrics {
	return &Metrics{}
}
