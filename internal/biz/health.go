package biz

import (
	"context"
	"sort"
	"time"

	"CivicGate/internal/conf"
	"CivicGate/internal/model"
	pkglog "CivicGate/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
	"golang.org/x/sync/errgroup"
)

const (
	defaultProbeTimeout = 5 * time.Second
	defaultRecentEvents = 50
	maxRecentEvents     = 200
)

// EnginesHealthReport is the aggregate of one probe round.
type EnginesHealthReport struct {
	Total     int                   `json:"total"`
	Healthy   int                   `json:"healthy"`
	Unhealthy int                   `json:"unhealthy"`
	Engines   []*model.EngineHealth `json:"engines"`
}

// SystemUsecase serves the operational endpoints: engine health,
// breaker status and recent audit events.
type SystemUsecase struct {
	prober       EngineProber
	circuits     CircuitInspector
	journal      EventJournal
	metrics      Metrics
	probeTimeout time.Duration
	log          *pkglog.LogHelper
}

// NewSystemUsecase creates a new system use case.
func NewSystemUsecase(c *conf.Health, prober EngineProber, circuits CircuitInspector, journal EventJournal, metrics Metrics, logger log.Logger) *SystemUsecase {
	timeout := defaultProbeTimeout
	if c != nil && c.ProbeTimeout.AsDuration() > 0 {
		timeout = c.ProbeTimeout.AsDuration()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &SystemUsecase{
		prober:       prober,
		circuits:     circuits,
		journal:      journal,
		metrics:      metrics,
		probeTimeout: timeout,
		log:          pkglog.NewLogHelper(logger),
	}
}

// EnginesHealth probes every engine except the gateway itself concurrently.
// Probes bypass the circuit breaker.
func (uc *SystemUsecase) EnginesHealth(ctx context.Context) *EnginesHealthReport {
	var engines []string
	for _, engine := range uc.prober.Engines() {
		if engine != model.EngineAPIGateway {
			engines = append(engines, engine)
		}
	}

	results := make([]*model.EngineHealth, len(engines))
	var g errgroup.Group
	for i, engine := range engines {
		i, engine := i, engine
		g.Go(func() error {
			results[i] = uc.prober.Probe(ctx, engine, uc.probeTimeout)
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Engine < results[j].Engine })

	report := &EnginesHealthReport{Total: len(results), Engines: results}
	for _, r := range results {
		if r.Status == model.EngineHealthy {
			report.Healthy++
		}
	}
	report.Unhealthy = report.Total - report.Healthy
	return report
}

// Sweep runs one probe round and publishes the engine_up gauge.
// Called by the cron scheduler.
func (uc *SystemUsecase) Sweep(ctx context.Context) *EnginesHealthReport {
	report := uc.EnginesHealth(ctx)
	var down []string
	for _, r := range report.Engines {
		up := r.Status == model.EngineHealthy
		uc.metrics.SetEngineUp(r.Engine, up)
		if !up {
			down = append(down, r.Engine)
		}
	}
	if len(down) > 0 {
		uc.log.Gateway("engine health sweep found unreachable engines",
			"healthy", report.Healthy, "unhealthy", report.Unhealthy, "engines", down)
	} else {
		uc.log.Gateway("engine health sweep complete", "healthy", report.Healthy)
	}
	return report
}

// CircuitStatus returns the breaker snapshot for every engine seen so far.
func (uc *SystemUsecase) CircuitStatus() map[string]model.CircuitStatus {
	return uc.circuits.Status()
}

// RecentEvents returns up to n audit records, newest first.
func (uc *SystemUsecase) RecentEvents(ctx context.Context, n int) ([]*model.AuditRecord, error) {
	if n <= 0 {
		n = defaultRecentEvents
	}
	if n > maxRecentEvents {
		n = maxRecentEvents
	}
	return uc.journal.Recent(ctx, n)
}

// EngineCount returns how many engines the gateway knows about, itself included.
func (uc *SystemUsecase) EngineCount() int {
	return len(uc.prober.Engines())
}
