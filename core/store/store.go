package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by KV.Get when the key is absent or expired. A miss
// is a normal outcome, not a failure.
var ErrNotFound = errors.New("store: key not found")

// ErrUnavailable wraps timeouts and connection failures against the backing
// stores. Callers retry on their own tick or request loop, never inline.
var ErrUnavailable = errors.New("store: unavailable")

// Point is a single tagged measurement to append to the time-series store.
type Point struct {
	Measurement string
	Tags        map[string]string
	Fields      map[string]float64
	Time        time.Time
}

// Record is one row of a time-series query result, with the tags it was
// written under and its field values pivoted into a single map.
type Record struct {
	Time   time.Time
	Tags   map[string]string
	Fields map[string]float64
}

// QueryRequest selects records from one measurement over [Start, Stop).
// All listed tags must match exactly; Fields limits the returned fields when
// non-empty.
type QueryRequest struct {
	Measurement string
	Fields      []string
	Tags        map[string]string
	Start       time.Time
	Stop        time.Time
}

// TimeSeries is the append/range-query surface of the time-series store.
type TimeSeries interface {
	WritePoints(ctx context.Context, points []Point) error
	Query(ctx context.Context, req QueryRequest) ([]Record, error)
}

// KV is the TTL-capable key/value surface used for caching and idempotency
// markers. SetIfAbsent must be atomic: concurrent callers for one key see
// exactly one true result while the key lives.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
}
