// Package influx adapts the official InfluxDB v2 client to the time-series
// surface consumed by the scheduling core.
package influx

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/flexhaus/bems/core/logger"
	"github.com/flexhaus/bems/core/store"
)

// Columns Influx adds to every pivoted result row. Everything else is
// either a requested field or a tag.
var systemColumns = map[string]struct{}{
	"result": {}, "table": {}, "_start": {}, "_stop": {},
	"_time": {}, "_measurement": {}, "_field": {}, "_value": {},
}

// Client implements store.TimeSeries over an InfluxDB v2 instance.
type Client struct {
	client influxdb2.Client
	write  api.WriteAPIBlocking
	query  api.QueryAPI
	bucket string
	log    logger.Logger
}

// NewClient connects to the configured InfluxDB endpoint. The connection is
// lazy; Ping verifies reachability.
func NewClient(cfg Config, log logger.Logger) (*Client, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second}))
	return &Client{
		client: c,
		write:  c.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		query:  c.QueryAPI(cfg.Org),
		bucket: cfg.Bucket,
		log:    log,
	}, nil
}

// Ping checks the server health.
func (c *Client) Ping(ctx context.Context) error {
	health, err := c.client.Health(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	if health.Status != "pass" {
		return fmt.Errorf("%w: health status %s", store.ErrUnavailable, health.Status)
	}
	return nil
}

// Close releases the underlying client resources.
func (c *Client) Close() { c.client.Close() }

// WritePoints appends the points using the blocking write API.
func (c *Client) WritePoints(ctx context.Context, points []store.Point) error {
	for _, p := range points {
		fields := make(map[string]interface{}, len(p.Fields))
		for k, v := range p.Fields {
			fields[k] = v
		}
		if err := c.write.WritePoint(ctx, influxdb2.NewPoint(p.Measurement, p.Tags, fields, p.Time)); err != nil {
			return fmt.Errorf("%w: write %s: %v", store.ErrUnavailable, p.Measurement, err)
		}
	}
	return nil
}

// Query runs a pivoted Flux range query and maps each row to a record with
// its tags and requested fields.
func (c *Client) Query(ctx context.Context, req store.QueryRequest) ([]store.Record, error) {
	result, err := c.query.Query(ctx, buildFlux(c.bucket, req))
	if err != nil {
		return nil, fmt.Errorf("%w: query %s: %v", store.ErrUnavailable, req.Measurement, err)
	}
	defer func() {
		if err := result.Close(); err != nil {
			c.log.Warnf("close query result: %v", err)
		}
	}()

	var recs []store.Record
	for result.Next() {
		values := result.Record().Values()
		rec := store.Record{
			Time:   result.Record().Time(),
			Tags:   map[string]string{},
			Fields: map[string]float64{},
		}
		for k, v := range values {
			if _, system := systemColumns[k]; system {
				continue
			}
			switch val := v.(type) {
			case float64:
				rec.Fields[k] = val
			case int64:
				rec.Fields[k] = float64(val)
			case string:
				rec.Tags[k] = val
			}
		}
		recs = append(recs, rec)
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", store.ErrUnavailable, req.Measurement, err)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].Time.Before(recs[j].Time) })
	return recs, nil
}

// buildFlux assembles the range query: measurement and tag filters, an
// optional field filter, and a pivot that folds field rows into columns.
func buildFlux(bucket string, req store.QueryRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "from(bucket: \"%s\")\n", escapeFlux(bucket))
	fmt.Fprintf(&b, "  |> range(start: %s, stop: %s)\n",
		req.Start.UTC().Format(time.RFC3339Nano), req.Stop.UTC().Format(time.RFC3339Nano))
	fmt.Fprintf(&b, "  |> filter(fn: (r) => r._measurement == \"%s\")\n", escapeFlux(req.Measurement))

	for _, key := range sortedKeys(req.Tags) {
		fmt.Fprintf(&b, "  |> filter(fn: (r) => r[\"%s\"] == \"%s\")\n", escapeFlux(key), escapeFlux(req.Tags[key]))
	}

	if len(req.Fields) > 0 {
		clauses := make([]string, len(req.Fields))
		for i, f := range req.Fields {
			clauses[i] = fmt.Sprintf("r._field == \"%s\"", escapeFlux(f))
		}
		fmt.Fprintf(&b, "  |> filter(fn: (r) => %s)\n", strings.Join(clauses, " or "))
	}

	b.WriteString(`  |> pivot(rowKey: ["_time"], columnKey: ["_field"], valueColumn: "_value")`)
	return b.String()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func escapeFlux(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}
