package data

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"CivicGate/internal/conf"
	"CivicGate/internal/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/durationpb"
)

// Builds the providers the way the injector does and exercises them together.
func TestProviders_EndToEnd(t *testing.T) {
	mr := miniredis.RunT(t)
	defer mr.Close()

	engine := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	engineURL := engine.URL
	engine.Close()

	logger := log.DefaultLogger
	rdb, redisCleanup, err := NewRedisClient(&conf.Data{Redis: &conf.Data_Redis{Addr: mr.Addr()}}, logger)
	require.NoError(t, err)
	require.NotNil(t, rdb)
	defer redisCleanup()

	registry := NewMetricsRegistry()
	monitor := NewMonitor(registry)
	notifier := NewCircuitNotifier(monitor, logger)
	breaker := NewCircuitBreakerRegistry(&conf.CircuitBreaker{
		FailureThreshold: 2,
		RecoveryTimeout:  durationpb.New(time.Minute),
	}, notifier, logger)

	client, err := NewEngineClient(&conf.Engines{
		Urls: map[string]string{
			model.EngineRawDataStore:       engineURL,
			model.EngineAnalyticsWarehouse: engineURL,
		},
		DefaultTimeout: durationpb.New(time.Second),
	}, breaker, monitor, logger)
	require.NoError(t, err)

	journal := NewEventJournal(&conf.Audit{JournalSize: 10}, rdb, logger)
	emitter, closeEmitter := NewAuditEmitter(&conf.Audit{Workers: 1}, client, journal, monitor, logger)

	for i := 0; i < 2; i++ {
		emitter.Emit(context.Background(), &model.AuditRecord{EventType: model.AuditEventPolicyIngested, UserID: "system"})
	}
	closeEmitter()

	// Both sinks are down: each reaches the threshold and opens.
	status := breaker.Status()
	assert.Equal(t, model.CircuitOpen, status[model.EngineRawDataStore].State)
	assert.Equal(t, model.CircuitOpen, status[model.EngineAnalyticsWarehouse].State)
	assert.Equal(t, 2.0, testutil.ToFloat64(monitor.CircuitStateGauge.WithLabelValues(model.EngineRawDataStore)))
	assert.Equal(t, 2.0, testutil.ToFloat64(monitor.AuditWriteCounter.WithLabelValues("raw_data", "error")))

	recent, err := journal.Recent(context.Background(), 5)
	require.NoError(t, err)
	assert.Len(t, recent, 2, "journal records even when sinks fail")

	store := NewRateLimitStore(&conf.RateLimit{Store: "redis"}, rdb, logger)
	count, _, err := store.Increment(context.Background(), "127.0.0.1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
