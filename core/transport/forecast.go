package transport

import (
	"context"
	"time"
)

// ForecastRequest asks for a non-controllable load forecast over
// [Start, Stop) at IntervalMin resolution. The response is published to
// ReplyTopic, correlated by RequestID.
type ForecastRequest struct {
	RequestID   string    `json:"request_id"`
	ReplyTopic  string    `json:"reply_topic"`
	Start       time.Time `json:"start"`
	Stop        time.Time `json:"stop"`
	IntervalMin int       `json:"interval_min"`
}

// ForecastPoint is one forecast sample.
type ForecastPoint struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

// ForecastResponse carries the forecast series, or Error when the request
// could not be served. Source reports whether the series came from the
// cache or was computed for this request.
type ForecastResponse struct {
	RequestID string          `json:"request_id"`
	Start     time.Time       `json:"start"`
	Stop      time.Time       `json:"stop"`
	Series    []ForecastPoint `json:"series,omitempty"`
	Source    string          `json:"source,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// ForecastBus connects a forecast responder to the broker: it delivers
// incoming requests to the handler and publishes the handler's responses.
type ForecastBus interface {
	// SubscribeRequests registers the handler for incoming forecast
	// requests. The handler runs once per request.
	SubscribeRequests(ctx context.Context, handle func(ctx context.Context, req ForecastRequest)) error
	// PublishResponse sends a response to the reply topic of its request.
	PublishResponse(ctx context.Context, replyTopic string, resp ForecastResponse) error
}
