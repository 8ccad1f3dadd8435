package health

import "context"

// DBPinger checks database availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// ServiceChecker checks an external service's availability.
type ServiceChecker interface {
	HealthCheck(ctx context.Context) error
}
