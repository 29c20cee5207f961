package main

import (
	"github.com/turtacn/PriorArt-Intelligence/internal/app"
	grpcserver "github.com/turtacn/PriorArt-Intelligence/internal/interfaces/grpc"
	"github.com/turtacn/PriorArt-Intelligence/internal/interfaces/http/handlers"
)

// healthCheckers adapts backend probes to the HTTP readiness handler.
func healthCheckers(checks []app.Check) []handlers.HealthChecker {
	out := make([]handlers.HealthChecker, 0, len(checks))
	for _, c := range checks {
		out = append(out, handlers.HealthCheck(c.Name, c.Fn))
	}
	return out
}

// grpcChecks adapts backend probes to the gRPC health status monitor.
func grpcChecks(checks []app.Check) []grpcserver.Check {
	out := make([]grpcserver.Check, 0, len(checks))
	for _, c := range checks {
		out = append(out, grpcserver.Check(c.Fn))
	}
	return out
}
