package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/require"

	corelogger "github.com/flexhaus/bems/core/logger"
	"github.com/flexhaus/bems/core/transport"
)

// mockClient implements pahoClient for tests, capturing handlers so replies
// can be injected.
type mockClient struct {
	mu       sync.Mutex
	handlers map[string]paho.MessageHandler
	published []struct {
		topic   string
		payload []byte
	}
	publishErr error
}

func newMockClient() *mockClient {
	return &mockClient{handlers: map[string]paho.MessageHandler{}}
}

func (m *mockClient) IsConnected() bool   { return true }
func (m *mockClient) Connect() paho.Token { return &dummyToken{} }
func (m *mockClient) Disconnect(uint)     {}

func (m *mockClient) Publish(topic string, _ byte, _ bool, payload interface{}) paho.Token {
	m.mu.Lock()
	m.published = append(m.published, struct {
		topic   string
		payload []byte
	}{topic, payload.([]byte)})
	err := m.publishErr
	m.mu.Unlock()
	return &dummyToken{err: err}
}

func (m *mockClient) Subscribe(topic string, _ byte, callback paho.MessageHandler) paho.Token {
	m.mu.Lock()
	m.handlers[topic] = callback
	m.mu.Unlock()
	return &dummyToken{}
}

func (m *mockClient) lastPublished(t *testing.T) (string, []byte) {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.published)
	last := m.published[len(m.published)-1]
	return last.topic, last.payload
}

func (m *mockClient) deliver(t *testing.T, topic string, payload []byte) {
	t.Helper()
	m.mu.Lock()
	h := m.handlers[topic]
	m.mu.Unlock()
	require.NotNil(t, h, "no handler on %s", topic)
	h(nil, mockMessage{p: payload})
}

type dummyToken struct{ err error }

func (d dummyToken) Wait() bool                     { return true }
func (d dummyToken) WaitTimeout(time.Duration) bool { return true }
func (d dummyToken) Done() <-chan struct{}          { ch := make(chan struct{}); close(ch); return ch }
func (d dummyToken) Error() error                   { return d.err }

type mockMessage struct{ p []byte }

func (m mockMessage) Duplicate() bool   { return false }
func (m mockMessage) Qos() byte         { return 0 }
func (m mockMessage) Retained() bool    { return false }
func (m mockMessage) Topic() string     { return "" }
func (m mockMessage) MessageID() uint16 { return 0 }
func (m mockMessage) Payload() []byte   { return m.p }
func (m mockMessage) Ack()              {}

func newTestClient(t *testing.T) (*Client, *mockClient) {
	t.Helper()
	mc := newMockClient()
	newMQTTClient = func(*paho.ClientOptions) pahoClient { return mc }
	t.Cleanup(func() {
		newMQTTClient = func(opts *paho.ClientOptions) pahoClient { return paho.NewClient(opts) }
	})
	c, err := NewClient(Config{}, corelogger.NopLogger{})
	require.NoError(t, err)
	return c, mc
}

func TestPowerLimitCallRoundTrip(t *testing.T) {
	c, mc := newTestClient(t)
	p, err := NewPowerLimitClient(c)
	require.NoError(t, err)

	done := make(chan struct{})
	var resp transport.PowerLimitResponse
	var callErr error
	go func() {
		defer close(done)
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		resp, callErr = p.Call(ctx, transport.PowerLimitRequest{Reason: "grap", DurationMin: 45, PowerCapKW: 3})
	}()

	// Wait for the request to be published, then answer it.
	var env powerLimitEnvelope
	require.Eventually(t, func() bool {
		mc.mu.Lock()
		defer mc.mu.Unlock()
		return len(mc.published) > 0
	}, time.Second, 5*time.Millisecond)

	topic, payload := mc.lastPublished(t)
	require.Equal(t, c.cfg.PowerLimitTopic, topic)
	require.NoError(t, json.Unmarshal(payload, &env))
	require.NotEmpty(t, env.RequestID)
	require.Equal(t, "grap", env.Reason)

	reply, err := json.Marshal(powerLimitReply{
		RequestID:          env.RequestID,
		PowerLimitResponse: transport.PowerLimitResponse{Accepted: true, AppliedLimitKW: 3, DurationMin: 45},
	})
	require.NoError(t, err)
	mc.deliver(t, c.cfg.PowerLimitReplyTopic, reply)

	<-done
	require.NoError(t, callErr)
	require.True(t, resp.Accepted)
	require.Equal(t, 45.0, resp.DurationMin)
}

func TestPowerLimitCallTimeout(t *testing.T) {
	c, _ := newTestClient(t)
	p, err := NewPowerLimitClient(c)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = p.Call(ctx, transport.PowerLimitRequest{Reason: "grap"})
	require.ErrorIs(t, err, transport.ErrRPCTimeout)
}

func TestPowerLimitUnmatchedReplyIgnored(t *testing.T) {
	c, mc := newTestClient(t)
	_, err := NewPowerLimitClient(c)
	require.NoError(t, err)

	reply, _ := json.Marshal(powerLimitReply{RequestID: "nobody-waiting"})
	mc.deliver(t, c.cfg.PowerLimitReplyTopic, reply)
}

func TestForecastBusRoundTrip(t *testing.T) {
	c, mc := newTestClient(t)
	bus := NewForecastBus(c)

	received := make(chan transport.ForecastRequest, 1)
	err := bus.SubscribeRequests(context.Background(), func(_ context.Context, req transport.ForecastRequest) {
		received <- req
	})
	require.NoError(t, err)

	req := transport.ForecastRequest{
		RequestID:   "req-1",
		ReplyTopic:  "forecaster/reply/req-1",
		Start:       time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC),
		Stop:        time.Date(2025, 6, 4, 0, 0, 0, 0, time.UTC),
		IntervalMin: 10,
	}
	payload, err := json.Marshal(req)
	require.NoError(t, err)
	mc.deliver(t, c.cfg.ForecastRequestTopic, payload)

	select {
	case got := <-received:
		require.Equal(t, req.RequestID, got.RequestID)
		require.True(t, got.Start.Equal(req.Start))
	case <-time.After(time.Second):
		t.Fatal("handler not invoked")
	}

	resp := transport.ForecastResponse{RequestID: req.RequestID, Source: "computed"}
	require.NoError(t, bus.PublishResponse(context.Background(), req.ReplyTopic, resp))
	topic, body := mc.lastPublished(t)
	require.Equal(t, req.ReplyTopic, topic)
	var decoded transport.ForecastResponse
	require.NoError(t, json.Unmarshal(body, &decoded))
	require.Equal(t, "computed", decoded.Source)
}

func TestForecastBusDropsRequestWithoutReplyTopic(t *testing.T) {
	c, mc := newTestClient(t)
	bus := NewForecastBus(c)

	invoked := make(chan struct{}, 1)
	require.NoError(t, bus.SubscribeRequests(context.Background(), func(context.Context, transport.ForecastRequest) {
		invoked <- struct{}{}
	}))

	payload, _ := json.Marshal(transport.ForecastRequest{RequestID: "req-x"})
	mc.deliver(t, c.cfg.ForecastRequestTopic, payload)

	select {
	case <-invoked:
		t.Fatal("handler must not run without a reply topic")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishError(t *testing.T) {
	c, mc := newTestClient(t)
	mc.publishErr = errors.New("broker gone")
	bus := NewForecastBus(c)
	err := bus.PublishResponse(context.Background(), "forecaster/reply/x", transport.ForecastResponse{})
	require.Error(t, err)
}
