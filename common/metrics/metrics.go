package metrics

import (
	"log/slog"

	"go.opentelemetry.io/otel"
)

// Metrics groups the instruments shared by every repository, publisher and health probe.
type Metrics struct {
	Database  *DatabaseMetrics
	Messaging *MessagingMetrics
	Health    *HealthMetrics
	Runtime   *RuntimeMetrics
	logger    *slog.Logger
}

func New(serviceName string, logger *slog.Logger) (*Metrics, error) {
	meter := otel.Meter(serviceName)

	database, err := NewDatabaseMetrics(meter)
	if err != nil {
		return nil, err
	}

	messaging, err := NewMessagingMetrics(meter)
	if err != nil {
		return nil, err
	}

	health, err := NewHealthMetrics(meter)
	if err != nil {
		return nil, err
	}

	runtimeMetrics, err := NewRuntimeMetrics(meter)
	if err != nil {
		return nil, err
	}

	logger.Info("metrics collectors initialized successfully")

	return &Metrics{
		Database:  database,
		Messaging: messaging,
		Health:    health,
		Runtime:   runtimeMetrics,
		logger:    logger,
	}, nil
}

// NewMock creates a no-op Metrics instance for testing.
// All Record* calls on it are ignored.
func NewMock() *Metrics {
	return &Metrics{
		Database:  &DatabaseMetrics{},
		Messaging: &MessagingMetrics{},
		Health:    &HealthMetrics{dependencies: map[string]*DependencyStatus{}},
		Runtime:   &RuntimeMetrics{},
	}
}
