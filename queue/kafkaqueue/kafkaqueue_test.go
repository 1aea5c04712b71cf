package kafkaqueue

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bjaus/eventbus"
	"github.com/bjaus/eventbus/queue"
)

type fakeWriter struct {
	err   error
	calls [][]kafka.Message
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.calls = append(w.calls, msgs)
	return nil
}

type fakeReader struct {
	msgs      []kafka.Message
	committed []int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.msgs) == 0 {
		return kafka.Message{}, io.EOF
	}
	m := r.msgs[0]
	r.msgs = r.msgs[1:]
	return m, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func header(m kafka.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestQueueWrites(t *testing.T) {
	ctx := context.Background()

	t.Run("add writes one message", func(t *testing.T) {
		w := &fakeWriter{}
		q := New("emails", w, WithTopic("jobs"))

		require.NoError(t, q.Add(ctx, "send", []byte(`{"to":"x"}`), queue.Options{queue.OptJobID: "j-1"}))

		require.Len(t, w.calls, 1)
		m := w.calls[0][0]
		assert.Equal(t, "jobs", m.Topic)
		assert.Equal(t, []byte("j-1"), m.Key)
		assert.Equal(t, "send", header(m, HeaderJobName))
		assert.Equal(t, "j-1", header(m, HeaderJobID))

		msg, err := queue.NewDecoder().Decode(m.Value)
		require.NoError(t, err)
		assert.Equal(t, "emails", msg.Queue)
		assert.Equal(t, []byte(`{"to":"x"}`), msg.Data)
	})

	t.Run("bulk is one call", func(t *testing.T) {
		w := &fakeWriter{}
		q := New("emails", w)

		require.NoError(t, q.AddBulk(ctx, []queue.Job{{Name: "a"}, {Name: "b"}}))

		require.Len(t, w.calls, 1)
		assert.Len(t, w.calls[0], 2)
		assert.NotEqual(t, w.calls[0][0].Key, w.calls[0][1].Key)
	})

	t.Run("empty bulk writes nothing", func(t *testing.T) {
		w := &fakeWriter{}
		require.NoError(t, New("emails", w).AddBulk(ctx, nil))
		assert.Empty(t, w.calls)
	})

	t.Run("write error", func(t *testing.T) {
		cause := errors.New("broker unavailable")
		err := New("emails", &fakeWriter{err: cause}).Add(ctx, "send", nil, nil)
		assert.ErrorIs(t, err, cause)
	})
}

type sendEmail struct {
	To string `json:"to"`
}

func (sendEmail) Spec() queue.Spec { return queue.Spec{Queue: "emails", Name: "send"} }

func TestConsume(t *testing.T) {
	ctx := context.Background()
	w := &fakeWriter{}
	require.NoError(t, New("emails", w).AddBulk(ctx, []queue.Job{
		{Name: "send", Data: []byte(`{"to":"a"}`)},
		{Name: "unknown"},
		{Name: "send", Data: []byte(`{"to":"b"}`)},
	}))

	newReader := func() *fakeReader {
		r := &fakeReader{}
		for i, m := range w.calls[0] {
			m.Offset = int64(i)
			r.msgs = append(r.msgs, m)
		}
		return r
	}

	newConsumer := func(handle func(sendEmail) error) *queue.Consumer {
		reg := eventbus.NewRegistry()
		require.NoError(t, queue.RegisterProc[sendEmail](reg, eventbus.ProcFunc[sendEmail](
			func(_ context.Context, e sendEmail) error { return handle(e) })))
		types := queue.NewTypeRegistry()
		require.NoError(t, types.FromSignatures(reg.Signatures()))
		return queue.NewConsumer(eventbus.New(reg), types)
	}

	t.Run("commits handled and dropped messages", func(t *testing.T) {
		var got []string
		c := newConsumer(func(e sendEmail) error { got = append(got, e.To); return nil })
		r := newReader()

		err := Consume(ctx, c, r, nil)

		assert.ErrorIs(t, err, io.EOF)
		assert.Equal(t, []string{"a", "b"}, got)
		assert.Equal(t, []int64{0, 1, 2}, r.committed)
	})

	t.Run("commits undecodable payload and continues", func(t *testing.T) {
		var got []string
		c := newConsumer(func(e sendEmail) error { got = append(got, e.To); return nil })
		r := &fakeReader{}
		for i, data := range []string{`"not an object"`, `{"to":"c"}`} {
			value, err := queue.EncodeEnvelope(queue.Message{Queue: "emails", Name: "send", Data: []byte(data)})
			require.NoError(t, err)
			r.msgs = append(r.msgs, kafka.Message{Offset: int64(i), Value: value})
		}

		err := Consume(ctx, c, r, nil)

		assert.ErrorIs(t, err, io.EOF)
		assert.Equal(t, []string{"c"}, got)
		assert.Equal(t, []int64{0, 1}, r.committed)
	})

	t.Run("stops without commit on handler failure", func(t *testing.T) {
		cause := errors.New("smtp down")
		c := newConsumer(func(sendEmail) error { return cause })
		r := newReader()

		err := Consume(ctx, c, r, nil)

		assert.ErrorIs(t, err, cause)
		assert.Empty(t, r.committed)
	})
}
