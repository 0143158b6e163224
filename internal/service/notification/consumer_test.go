package notification

import (
	"context"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// sliceReader 依次返回预置的消息，读完后阻塞到 ctx 结束
type sliceReader struct {
	mu        sync.Mutex
	messages  []kafka.Message
	committed []int64
	drained   chan struct{}
}

func (r *sliceReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.messages) > 0 {
		msg := r.messages[0]
		r.messages = r.messages[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *sliceReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	if len(r.committed) == 2 {
		close(r.drained)
	}
	return nil
}

func TestRender(t *testing.T) {
	ok := OutcomeEvent{Succeeded: true, CreatedIDs: []string{"a", "b", "c"}}
	assert.Equal(t, "Your campaign batch is live: 3 offers created.", Render(ok))

	transient := OutcomeEvent{}
	transient.Error = &struct {
		Kind    string `json:"kind"`
		Code    string `json:"code"`
		Message string `json:"message"`
	}{Kind: "transient", Code: "timeout", Message: "offer service did not answer"}
	assert.Contains(t, Render(transient), "(timeout)")
	assert.Contains(t, Render(transient), "please retry")

	rejected := transient
	rejected.Error = &struct {
		Kind    string `json:"kind"`
		Code    string `json:"code"`
		Message string `json:"message"`
	}{Kind: "rejected", Code: "validation_failed", Message: "one or more drafts are invalid"}
	assert.Equal(t, "Your campaign batch was rejected: one or more drafts are invalid", Render(rejected))

	assert.Equal(t, "Your campaign batch could not be created.", Render(OutcomeEvent{}))
}

func TestOutcomeConsumer_Handle(t *testing.T) {
	c := NewOutcomeConsumer(&sliceReader{}, noop.NewTracerProvider().Tracer("test"))

	err := c.Handle(context.Background(), kafka.Message{
		Topic: "batch-outcomes",
		Value: []byte(`{"sessionId":"s-1","batchToken":"tok","succeeded":false,"error":{"kind":"rejected","code":"policy_violation","message":"nope"}}`),
	})
	assert.NoError(t, err)

	err = c.Handle(context.Background(), kafka.Message{Value: []byte(`not json`)})
	assert.Error(t, err)
}

func TestOutcomeConsumer_RunCommitsEvenUnprocessableMessages(t *testing.T) {
	reader := &sliceReader{
		messages: []kafka.Message{
			{Offset: 1, Value: []byte(`{broken`)},
			{Offset: 2, Value: []byte(`{"sessionId":"s-1","succeeded":true,"createdIds":["o1"]}`)},
		},
		drained: make(chan struct{}),
	}
	c := NewOutcomeConsumer(reader, noop.NewTracerProvider().Tracer("test"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	<-reader.drained
	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, []int64{1, 2}, reader.committed)
}
