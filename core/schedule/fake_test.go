package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/flexhaus/bems/core/store"
)

// fakeTimeSeries keeps written points in memory and serves range queries
// over them, mimicking the store contract closely enough for round trips.
type fakeTimeSeries struct {
	mu       sync.Mutex
	points   []store.Point
	writeErr error
	queryErr error
	queries  int
}

func (f *fakeTimeSeries) WritePoints(_ context.Context, points []store.Point) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.points = append(f.points, points...)
	return nil
}

func (f *fakeTimeSeries) Query(_ context.Context, req store.QueryRequest) ([]store.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries++
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	var recs []store.Record
	for _, p := range f.points {
		if p.Measurement != req.Measurement {
			continue
		}
		if p.Time.Before(req.Start) || !p.Time.Before(req.Stop) {
			continue
		}
		match := true
		for k, v := range req.Tags {
			if p.Tags[k] != v {
				match = false
				break
			}
		}
		if !match {
			continue
		}
		tags := make(map[string]string, len(p.Tags))
		for k, v := range p.Tags {
			tags[k] = v
		}
		fields := make(map[string]float64, len(p.Fields))
		for k, v := range p.Fields {
			fields[k] = v
		}
		recs = append(recs, store.Record{Time: p.Time, Tags: tags, Fields: fields})
	}
	return recs, nil
}

// fakeKV is a minimal in-memory store.KV without TTL bookkeeping beyond
// what the monitor needs.
type fakeKV struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newFakeKV() *fakeKV { return &fakeKV{data: map[string][]byte{}} }

func (f *fakeKV) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return v, nil
}

func (f *fakeKV) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value
	return nil
}

func (f *fakeKV) SetIfAbsent(_ context.Context, key string, value []byte, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	f.data[key] = value
	return true, nil
}

func (f *fakeKV) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
	return nil
}
