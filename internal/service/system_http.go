package service

import (
	"context"

	"github.com/go-kratos/kratos/v2/transport/http"
)

const (
	OperationSystemHealth        = "/civicgate.v1.System/Health"
	OperationSystemDirectory     = "/civicgate.v1.System/Directory"
	OperationSystemCircuitStatus = "/civicgate.v1.System/CircuitStatus"
	OperationSystemEnginesHealth = "/civicgate.v1.System/EnginesHealth"
	OperationSystemRecentEvents  = "/civicgate.v1.System/RecentEvents"
)

// RegisterSystemHTTPServer mounts the operational routes.
func RegisterSystemHTTPServer(s *http.Server, srv *SystemService) {
	r := s.Route("/")
	r.GET("/health", queryHandler(OperationSystemHealth, srv.Health))
	r.GET("/", queryHandler(OperationSystemDirectory, srv.Directory))
	r.GET("/api/v1/circuit-breaker/status", queryHandler(OperationSystemCircuitStatus, srv.CircuitStatus))
	r.GET("/api/v1/engines/health", queryHandler(OperationSystemEnginesHealth, srv.EnginesHealth))
	r.GET("/api/v1/debug/events", queryHandler(OperationSystemRecentEvents, srv.RecentEvents))
}

// queryHandler decodes the query string into T and runs call through the
// server middleware chain.
func queryHandler[T, R any](operation string, call func(context.Context, *T) (R, error)) http.HandlerFunc {
	return func(ctx http.Context) error {
		var in T
		if err := ctx.BindQuery(&in); err != nil {
			return err
		}
		http.SetOperation(ctx, operation)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(ctx, req.(*T))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		return ctx.Result(200, out)
	}
}
