package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/flexhaus/bems/core/transport"
)

type powerLimitEnvelope struct {
	RequestID string `json:"request_id"`
	transport.PowerLimitRequest
}

type powerLimitReply struct {
	RequestID string `json:"request_id"`
	transport.PowerLimitResponse
}

// PowerLimitClient issues cold-load-pickup RPCs over the broker, correlating
// responses to requests by UUID.
type PowerLimitClient struct {
	c *Client

	mu      sync.Mutex
	pending map[string]chan transport.PowerLimitResponse
}

// NewPowerLimitClient subscribes to the reply topic and returns a ready
// client.
func NewPowerLimitClient(c *Client) (*PowerLimitClient, error) {
	p := &PowerLimitClient{c: c, pending: make(map[string]chan transport.PowerLimitResponse)}
	if err := c.subscribe(c.cfg.PowerLimitReplyTopic, c.qos("power_limit"), p.onReply); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *PowerLimitClient) onReply(_ paho.Client, msg paho.Message) {
	var reply powerLimitReply
	if err := json.Unmarshal(msg.Payload(), &reply); err != nil {
		p.c.log.Errorf("decode power limit reply: %v", err)
		return
	}
	p.mu.Lock()
	ch, ok := p.pending[reply.RequestID]
	p.mu.Unlock()
	if !ok {
		p.c.log.Warnf("unmatched power limit reply %s", reply.RequestID)
		return
	}
	select {
	case ch <- reply.PowerLimitResponse:
	default:
	}
}

// Call publishes the request and waits for the correlated response. Expiry
// of ctx surfaces as transport.ErrRPCTimeout.
func (p *PowerLimitClient) Call(ctx context.Context, req transport.PowerLimitRequest) (transport.PowerLimitResponse, error) {
	id := uuid.NewString()
	payload, err := json.Marshal(powerLimitEnvelope{RequestID: id, PowerLimitRequest: req})
	if err != nil {
		return transport.PowerLimitResponse{}, err
	}

	ch := make(chan transport.PowerLimitResponse, 1)
	p.mu.Lock()
	p.pending[id] = ch
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.pending, id)
		p.mu.Unlock()
	}()

	if err := p.c.publish(p.c.cfg.PowerLimitTopic, p.c.qos("power_limit"), payload); err != nil {
		return transport.PowerLimitResponse{}, err
	}
	p.c.log.Infof("published power limit request %s", id)

	select {
	case resp := <-ch:
		return resp, nil
	case <-ctx.Done():
		return transport.PowerLimitResponse{}, fmt.Errorf("%w: request %s", transport.ErrRPCTimeout, id)
	}
}
