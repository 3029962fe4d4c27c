package proxy

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"moodify-server-go/internal/domain/eventbus"
	apperrors "moodify-server-go/internal/platform/errors"
	"moodify-server-go/internal/platform/logging"
)

type upstream struct {
	*httptest.Server
	calls     atomic.Int32
	lastAuth  atomic.Value
	lastPath  atomic.Value
	lastTrace atomic.Value
	lastBody  atomic.Value
	status    int
	body      string
	delay     time.Duration
}

func newUpstream(t *testing.T, status int, body string) *upstream {
	t.Helper()
	return newSlowUpstream(t, status, body, 0)
}

func newSlowUpstream(t *testing.T, status int, body string, delay time.Duration) *upstream {
	t.Helper()
	u := &upstream{status: status, body: body, delay: delay}
	u.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.calls.Add(1)
		u.lastAuth.Store(r.Header.Get("Authorization"))
		u.lastPath.Store(r.URL.Path)
		u.lastTrace.Store(r.Header.Get("Traceparent"))
		raw, _ := io.ReadAll(r.Body)
		u.lastBody.Store(string(raw))
		if u.delay > 0 {
			select {
			case <-time.After(u.delay):
			case <-r.Context().Done():
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(u.status)
		_, _ = io.WriteString(w, u.body)
	}))
	t.Cleanup(u.Close)
	return u
}

type recordingBus struct {
	topics []string
}

func (b *recordingBus) Publish(topic string, args ...interface{}) {
	b.topics = append(b.topics, topic)
}

func newTestProxy(t *testing.T, baseURL string, timeout time.Duration, bus eventbus.Publisher) *Proxy {
	t.Helper()
	p, err := New(Config{BaseURL: baseURL + "/", APIKey: "sk-service", Timeout: timeout}, logging.Discard(), bus)
	require.NoError(t, err)
	return p
}

func TestContracts(t *testing.T) {
	chat := Destinations[RouteChat]
	images := Destinations[RouteImages]

	cases := []struct {
		name string
		dest Destination
		body string
		want bool
	}{
		{"chat ok", chat, `{"messages":[{"role":"user","content":"hi"}]}`, true},
		{"chat extra fields", chat, `{"model":"gpt-4o","messages":[{"role":"system","content":"x","name":"n"}]}`, true},
		{"chat empty list", chat, `{"messages":[]}`, true},
		{"chat wrong shape", chat, `{"prompt":"hi"}`, false},
		{"chat messages not array", chat, `{"messages":"hi"}`, false},
		{"chat numeric content", chat, `{"messages":[{"role":"user","content":1}]}`, false},
		{"chat missing role", chat, `{"messages":[{"content":"hi"}]}`, false},
		{"chat missing content", chat, `{"messages":[{"role":"user"}]}`, false},
		{"chat empty object", chat, `{}`, false},
		{"chat null messages", chat, `{"messages":null}`, false},
		{"chat null element", chat, `{"messages":[null]}`, false},
		{"chat string element", chat, `{"messages":["hi"]}`, false},
		{"chat top-level array", chat, `[{"role":"user","content":"hi"}]`, false},
		{"chat malformed", chat, `{"messages":[`, false},
		{"chat empty", chat, ``, false},
		{"image ok", images, `{"prompt":"a red dress"}`, true},
		{"image only size", images, `{"prompt":"x","size":"512x512"}`, true},
		{"image only n", images, `{"prompt":"x","n":2}`, true},
		{"image empty object", images, `{}`, false},
		{"image full", images, `{"prompt":"a red dress","n":1,"size":"1024x1024"}`, true},
		{"image numeric prompt", images, `{"prompt":5}`, false},
		{"image missing prompt", images, `{"n":1}`, false},
		{"image string n", images, `{"prompt":"x","n":"1"}`, false},
		{"image null n", images, `{"prompt":"x","n":null}`, false},
		{"image numeric size", images, `{"prompt":"x","size":1024}`, false},
		{"image messages", images, `{"messages":[{"role":"user","content":"hi"}]}`, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.dest.Check([]byte(tc.body)))
		})
	}
}

func TestForwardRelaysUpstreamVerbatim(t *testing.T) {
	const reply = `{"id":"chatcmpl-1","choices":[{"message":{"role":"assistant","content":"hello"}}]}`
	up := newUpstream(t, http.StatusOK, reply)
	p := newTestProxy(t, up.URL, time.Second, nil)

	body := `{"messages":[{"role":"user","content":"hi"}]}`
	resp, err := p.Forward(context.Background(), RouteChat, []byte(body))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.JSONEq(t, reply, string(resp.Body))
	assert.Equal(t, int32(1), up.calls.Load())
	assert.Equal(t, "Bearer sk-service", up.lastAuth.Load())
	assert.Equal(t, "/chat/completions", up.lastPath.Load())
	assert.Equal(t, body, up.lastBody.Load())
}

func TestForwardPassesUpstreamErrors(t *testing.T) {
	const reply = `{"error":{"message":"Your request was rejected as a result of our safety system.","type":"invalid_request_error","code":"content_policy_violation"}}`
	up := newUpstream(t, http.StatusBadRequest, reply)
	p := newTestProxy(t, up.URL, time.Second, nil)

	resp, err := p.Forward(context.Background(), RouteImages, []byte(`{"prompt":"x"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.Status)
	assert.Equal(t, reply, string(resp.Body))
	assert.Equal(t, "/images/generations", up.lastPath.Load())
}

func TestForwardRejectsInvalidBodyWithoutUpstreamCall(t *testing.T) {
	up := newUpstream(t, http.StatusOK, `{}`)
	p := newTestProxy(t, up.URL, time.Second, nil)

	_, err := p.Forward(context.Background(), RouteChat, []byte(`{"prompt":"hi"}`))
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, apperrors.HTTPStatus(err))
	assert.Equal(t, MsgInvalidBody, apperrors.PublicMessage(err, ""))
	assert.Zero(t, up.calls.Load())
}

func TestForwardTransportFailures(t *testing.T) {
	t.Run("connection refused", func(t *testing.T) {
		up := newUpstream(t, http.StatusOK, `{}`)
		url := up.URL
		up.Close()

		bus := &recordingBus{}
		p := newTestProxy(t, url, time.Second, bus)
		_, err := p.Forward(context.Background(), RouteChat, []byte(`{"messages":[]}`))
		require.Error(t, err)
		assert.Equal(t, http.StatusInternalServerError, apperrors.HTTPStatus(err))
		assert.Equal(t, MsgProxyError, apperrors.PublicMessage(err, MsgProxyError))
		assert.Equal(t, []string{eventbus.EventProxyFailed}, bus.topics)
	})

	t.Run("timeout", func(t *testing.T) {
		up := newSlowUpstream(t, http.StatusOK, `{}`, 2*time.Second)
		p := newTestProxy(t, up.URL, 50*time.Millisecond, nil)

		start := time.Now()
		_, err := p.Forward(context.Background(), RouteChat, []byte(`{"messages":[]}`))
		require.Error(t, err)
		assert.True(t, apperrors.IsKind(err, apperrors.KindTransport))
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("non json body", func(t *testing.T) {
		up := newUpstream(t, http.StatusBadGateway, `<html>bad gateway</html>`)
		p := newTestProxy(t, up.URL, time.Second, nil)

		_, err := p.Forward(context.Background(), RouteChat, []byte(`{"messages":[]}`))
		require.Error(t, err)
		assert.True(t, apperrors.IsKind(err, apperrors.KindTransport))
	})
}

func TestForwardPropagatesTraceContext(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	ctx, span := tp.Tracer("test").Start(context.Background(), "request")
	defer span.End()

	up := newUpstream(t, http.StatusOK, `{}`)
	p := newTestProxy(t, up.URL, time.Second, nil)
	_, err := p.Forward(ctx, RouteChat, []byte(`{"messages":[]}`))
	require.NoError(t, err)
	assert.Contains(t, up.lastTrace.Load(), span.SpanContext().TraceID().String())
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New(Config{}, logging.Discard(), nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindConfig))

	p, err := New(Config{APIKey: "k"}, logging.Discard(), nil)
	require.NoError(t, err)
	assert.Equal(t, "https://api.openai.com/v1", p.baseURL)
}
