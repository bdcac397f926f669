package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	applogger "CryptoSignal/pkg/logger"
)

type memWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *memWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *memWriter) Close() error { return nil }

type memReader struct {
	mu        sync.Mutex
	committed []kafka.Message
}

func (r *memReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *memReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *memReader) Close() error { return nil }

type flakyHandler struct {
	failures int
	calls    int
}

func (h *flakyHandler) Topic() string { return "requests" }

func (h *flakyHandler) Handle(context.Context, []byte) error {
	h.calls++
	if h.calls <= h.failures {
		return errors.New("boom")
	}
	return nil
}

func TestProducerEncodesAndKeys(t *testing.T) {
	w := &memWriter{}
	p := NewProducerWithWriter(w, "gzip")

	err := p.PublishBatch(context.Background(), "signals", []Message{
		{Key: []byte("BTC"), Value: map[string]string{"symbol": "BTC"}},
		{Key: []byte("ETH"), Value: "raw"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(w.msgs) != 2 {
		t.Fatalf("messages = %d", len(w.msgs))
	}
	var got map[string]string
	if err := json.Unmarshal(w.msgs[0].Value, &got); err != nil || got["symbol"] != "BTC" {
		t.Fatalf("value = %s (%v)", w.msgs[0].Value, err)
	}
	if string(w.msgs[1].Value) != "raw" || string(w.msgs[1].Key) != "ETH" || w.msgs[1].Topic != "signals" {
		t.Fatalf("second = %+v", w.msgs[1])
	}
	if err := p.PublishBatch(context.Background(), "signals", nil); err != nil {
		t.Fatal(err)
	}
}

func TestProducerPropagatesWriteError(t *testing.T) {
	p := NewProducerWithWriter(&memWriter{err: errors.New("down")}, "gzip")
	if err := p.Publish(context.Background(), "signals", nil, "x"); err == nil {
		t.Fatal("expected error")
	}
}

func newTestConsumer(t *testing.T, h MessageHandler, opts ...ConsumerOption) (*Consumer, *memReader) {
	t.Helper()
	opts = append([]ConsumerOption{WithConsumerBrokers([]string{"localhost:9092"}), WithConsumerRetry(2, time.Millisecond, 2*time.Millisecond)}, opts...)
	c, err := NewConsumer(applogger.Nop(), opts...)
	if err != nil {
		t.Fatal(err)
	}
	r := &memReader{}
	c.RegisterHandler(h)
	c.readers[h.Topic()] = r
	return c, r
}

func TestConsumerRetriesThenCommits(t *testing.T) {
	h := &flakyHandler{failures: 2}
	c, r := newTestConsumer(t, h)

	c.process(context.Background(), kafka.Message{Topic: "requests", Value: []byte("{}")})
	if h.calls != 3 {
		t.Fatalf("calls = %d", h.calls)
	}
	if len(r.committed) != 1 {
		t.Fatalf("committed = %d", len(r.committed))
	}
}

func TestConsumerDeadLetters(t *testing.T) {
	h := &flakyHandler{failures: 100}
	c, r := newTestConsumer(t, h, WithConsumerDLQ("requests-dlq"))
	dlq := &memWriter{}
	c.dlq = dlq

	c.process(context.Background(), kafka.Message{Topic: "requests", Value: []byte("bad")})
	if len(dlq.msgs) != 1 || dlq.msgs[0].Topic != "requests-dlq" || string(dlq.msgs[0].Value) != "bad" {
		t.Fatalf("dlq = %+v", dlq.msgs)
	}
	if len(r.committed) != 1 {
		t.Fatal("dead-lettered message must be committed")
	}
}

func TestConsumerWithoutDLQLeavesOffset(t *testing.T) {
	h := &flakyHandler{failures: 100}
	c, r := newTestConsumer(t, h)
	c.process(context.Background(), kafka.Message{Topic: "requests"})
	if len(r.committed) != 0 {
		t.Fatal("failed message must not be committed without a DLQ")
	}
}

func TestHookChainContainsPanics(t *testing.T) {
	var after []string
	chain := NewHookChain(
		HookFuncs{After: func(context.Context, string, kafka.Message, []byte, error) { after = append(after, "first") }},
		HookFuncs{After: func(context.Context, string, kafka.Message, []byte, error) { panic("x") }},
		HookFuncs{After: func(context.Context, string, kafka.Message, []byte, error) { after = append(after, "third") }},
	)
	chain.AfterHandle(context.Background(), "t", kafka.Message{}, nil, nil)
	if len(after) != 2 || after[0] != "third" {
		t.Fatalf("after order = %v", after)
	}

	bad := NewHookChain(HookFuncs{Before: func(context.Context, string, kafka.Message, []byte) (context.Context, kafka.Message, []byte, error) {
		panic("before")
	}})
	_, _, _, err := bad.BeforeHandle(context.Background(), "t", kafka.Message{}, nil)
	var he *HookError
	if !errors.As(err, &he) || he.Code != "ERR_PANIC" {
		t.Fatalf("err = %v", err)
	}
}

func TestTracingHookCarriesTraceID(t *testing.T) {
	h := TracingHook(applogger.Nop(), time.Second)
	msg := kafka.Message{Headers: []kafka.Header{{Key: "trace_id", Value: []byte("abc")}}}
	ctx, _, _, err := h.BeforeHandle(context.Background(), "t", msg, nil)
	if err != nil || TraceID(ctx) != "abc" {
		t.Fatalf("trace id = %q (%v)", TraceID(ctx), err)
	}
}
