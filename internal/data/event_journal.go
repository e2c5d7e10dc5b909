package data

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"CivicGate/internal/conf"
	"CivicGate/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"
)

const (
	eventJournalKey         = "civicgate:events:recent"
	defaultEventJournalSize = 200
)

// EventJournal keeps the most recent audit records for /debug/events.
// Redis list when available (shared across replicas), in-process ring otherwise.
type EventJournal struct {
	rdb    *redis.Client
	size   int
	mu     sync.Mutex
	ring   []*model.AuditRecord // newest first
	logger *log.Helper
}

// NewEventJournal creates a new event journal.
func NewEventJournal(c *conf.Audit, rdb *redis.Client, logger log.Logger) *EventJournal {
	size := defaultEventJournalSize
	if c != nil && c.JournalSize > 0 {
		size = int(c.JournalSize)
	}
	helper := log.NewHelper(logger)
	if rdb == nil {
		helper.Info("event journal using in-memory ring")
	}
	return &EventJournal{
		rdb:    rdb,
		size:   size,
		logger: helper,
	}
}

// Append stores one record, trimming the journal to its size.
func (j *EventJournal) Append(ctx context.Context, record *model.AuditRecord) error {
	if j.rdb == nil {
		j.appendLocal(record)
		return nil
	}

	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	pipe := j.rdb.TxPipeline()
	pipe.LPush(ctx, eventJournalKey, raw)
	pipe.LTrim(ctx, eventJournalKey, 0, int64(j.size-1))
	if _, err := pipe.Exec(ctx); err != nil {
		// Redis 不可用时退化到本地
		j.appendLocal(record)
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

func (j *EventJournal) appendLocal(record *model.AuditRecord) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.ring = append([]*model.AuditRecord{record}, j.ring...)
	if len(j.ring) > j.size {
		j.ring = j.ring[:j.size]
	}
}

// Recent returns up to n records, newest first.
func (j *EventJournal) Recent(ctx context.Context, n int) ([]*model.AuditRecord, error) {
	if n <= 0 || n > j.size {
		n = j.size
	}

	if j.rdb == nil {
		return j.recentLocal(n), nil
	}

	items, err := j.rdb.LRange(ctx, eventJournalKey, 0, int64(n-1)).Result()
	if err != nil {
		j.logger.Warnw("msg", "failed to read event journal, falling back to local ring", "error", err)
		return j.recentLocal(n), nil
	}

	out := make([]*model.AuditRecord, 0, len(items))
	for _, item := range items {
		var record model.AuditRecord
		if err := json.Unmarshal([]byte(item), &record); err != nil {
			j.logger.Warnw("msg", "skipping malformed journal entry", "error", err)
			continue
		}
		out = append(out, &record)
	}
	return out, nil
}

func (j *EventJournal) recentLocal(n int) []*model.AuditRecord {
	j.mu.Lock()
	defer j.mu.Unlock()
	if n > len(j.ring) {
		n = len(j.ring)
	}
	out := make([]*model.AuditRecord, n)
	copy(out, j.ring[:n])
	return out
}
