package mqtt

import (
	"context"
	"encoding/json"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/flexhaus/bems/core/transport"
)

// ForecastBus moves forecast requests and responses over the broker.
type ForecastBus struct {
	c *Client
}

// NewForecastBus wraps a connected client.
func NewForecastBus(c *Client) *ForecastBus { return &ForecastBus{c: c} }

// SubscribeRequests registers the handler on the forecast request topic.
// Each request runs the handler in its own goroutine so a slow computation
// does not block the broker callback.
func (b *ForecastBus) SubscribeRequests(ctx context.Context, handle func(ctx context.Context, req transport.ForecastRequest)) error {
	return b.c.subscribe(b.c.cfg.ForecastRequestTopic, b.c.qos("forecast"), func(_ paho.Client, msg paho.Message) {
		var req transport.ForecastRequest
		if err := json.Unmarshal(msg.Payload(), &req); err != nil {
			b.c.log.Errorf("decode forecast request: %v", err)
			return
		}
		if req.ReplyTopic == "" {
			b.c.log.Warnf("forecast request %s has no reply topic, dropping", req.RequestID)
			return
		}
		go handle(ctx, req)
	})
}

// PublishResponse sends the response to the request's reply topic.
func (b *ForecastBus) PublishResponse(_ context.Context, replyTopic string, resp transport.ForecastResponse) error {
	payload, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return b.c.publish(replyTopic, b.c.qos("forecast"), payload)
}
