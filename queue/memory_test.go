package queue

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type MemoryQueueSuite struct {
	suite.Suite
	ctx context.Context
	q   *MemoryQueue
}

func TestMemoryQueueSuite(t *testing.T) {
	suite.Run(t, new(MemoryQueueSuite))
}

func (s *MemoryQueueSuite) SetupTest() {
	s.ctx = context.Background()
	s.q = NewMemoryQueue("emails")
}

func (s *MemoryQueueSuite) receive() Message {
	ctx, cancel := context.WithTimeout(s.ctx, time.Second)
	defer cancel()
	msg, err := s.q.Receive(ctx)
	s.Require().NoError(err)
	return msg
}

func (s *MemoryQueueSuite) TestDeliversInOrder() {
	s.Require().NoError(s.q.Add(s.ctx, "first", nil, nil))
	s.Require().NoError(s.q.AddBulk(s.ctx, []Job{{Name: "second"}, {Name: "third"}}))

	s.Assert().Equal(3, s.q.Len())
	s.Assert().Equal("first", s.receive().Name)
	s.Assert().Equal("second", s.receive().Name)
	s.Assert().Equal("third", s.receive().Name)
	s.Assert().Zero(s.q.Len())
}

func (s *MemoryQueueSuite) TestMessageFields() {
	data := []byte(`{"to":"x"}`)
	opts := Options{OptAttempts: 2}
	s.Require().NoError(s.q.Add(s.ctx, "send", data, opts))
	data[0] = 'X'
	opts[OptAttempts] = 9

	msg := s.receive()
	s.Assert().Equal("emails", msg.Queue)
	s.Assert().Equal([]byte(`{"to":"x"}`), msg.Data)
	s.Assert().Equal(2, msg.Options.Attempts())
	s.Assert().Zero(msg.Attempt)

	_, err := uuid.Parse(msg.ID)
	s.Assert().NoError(err)
}

func (s *MemoryQueueSuite) TestJobIDOption() {
	s.Require().NoError(s.q.Add(s.ctx, "send", nil, Options{OptJobID: "job-7"}))

	s.Assert().Equal("job-7", s.receive().ID)
}

func (s *MemoryQueueSuite) TestLIFOJumpsAhead() {
	s.Require().NoError(s.q.Add(s.ctx, "a", nil, nil))
	s.Require().NoError(s.q.Add(s.ctx, "b", nil, Options{OptLIFO: true}))

	jobs := s.q.Jobs()
	s.Require().Len(jobs, 2)
	s.Assert().Equal("b", jobs[0].Name)
	s.Assert().Equal("b", s.receive().Name)
}

func (s *MemoryQueueSuite) TestDelayedJobWaits() {
	s.Require().NoError(s.q.Add(s.ctx, "later", nil, Options{OptDelay: 50}))
	s.Require().NoError(s.q.Add(s.ctx, "now", nil, nil))

	start := time.Now()
	s.Assert().Equal("now", s.receive().Name)
	s.Assert().Equal("later", s.receive().Name)
	s.Assert().GreaterOrEqual(time.Since(start), 50*time.Millisecond)
}

func (s *MemoryQueueSuite) TestReceiveWakesOnAdd() {
	got := make(chan Message, 1)
	go func() {
		msg, err := s.q.Receive(s.ctx)
		if err == nil {
			got <- msg
		}
	}()

	time.Sleep(10 * time.Millisecond)
	s.Require().NoError(s.q.Add(s.ctx, "wake", nil, nil))

	select {
	case msg := <-got:
		s.Assert().Equal("wake", msg.Name)
	case <-time.After(time.Second):
		s.Fail("receiver was not woken")
	}
}

func (s *MemoryQueueSuite) TestReceiveHonorsContext() {
	ctx, cancel := context.WithTimeout(s.ctx, 20*time.Millisecond)
	defer cancel()

	_, err := s.q.Receive(ctx)

	s.Assert().ErrorIs(err, context.DeadlineExceeded)
}

func (s *MemoryQueueSuite) TestClose() {
	s.Require().NoError(s.q.Add(s.ctx, "ready", nil, nil))
	s.q.Close()
	s.q.Close()

	s.Assert().ErrorIs(s.q.Add(s.ctx, "late", nil, nil), ErrQueueClosed)
	s.Assert().Equal("ready", s.receive().Name)

	_, err := s.q.Receive(s.ctx)
	s.Assert().ErrorIs(err, ErrQueueClosed)
}

func (s *MemoryQueueSuite) TestAddWithCanceledContext() {
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()

	s.Assert().ErrorIs(s.q.Add(ctx, "x", nil, nil), context.Canceled)
	s.Assert().Zero(s.q.Len())
}

func TestMemoryFlowProducer(t *testing.T) {
	ctx := context.Background()
	reports := NewMemoryQueue("reports")
	pages := NewMemoryQueue("pages")
	queues := NewQueueRegistry(reports, pages)
	p := NewMemoryFlowProducer(queues)

	t.Run("children before parent with inherited prefix", func(t *testing.T) {
		err := p.Add(ctx, FlowJob{
			Name:   "build",
			Queue:  "reports",
			Prefix: "{reports}",
			Children: []FlowJob{
				{Name: "render-1", Queue: "pages"},
				{Name: "summary", Queue: "reports", Children: []FlowJob{{Name: "render-2", Queue: "pages"}}},
			},
		})
		require.NoError(t, err)

		pageJobs := pages.Jobs()
		require.Len(t, pageJobs, 2)
		assert.Equal(t, "render-1", pageJobs[0].Name)
		assert.Equal(t, "render-2", pageJobs[1].Name)
		assert.Equal(t, "{reports}", pageJobs[1].Prefix)

		reportJobs := reports.Jobs()
		require.Len(t, reportJobs, 2)
		assert.Equal(t, "summary", reportJobs[0].Name)
		assert.Equal(t, "build", reportJobs[1].Name)
		assert.Equal(t, "{reports}", reportJobs[1].Prefix)
	})

	t.Run("unknown queue writes nothing", func(t *testing.T) {
		before := pages.Len()
		err := p.AddBulk(ctx, []FlowJob{
			{Name: "ok", Queue: "pages"},
			{Name: "bad", Queue: "reports", Children: []FlowJob{{Name: "lost", Queue: "missing"}}},
		})

		assert.ErrorIs(t, err, ErrEntityNotFound)
		assert.Equal(t, before, pages.Len())
	})

	t.Run("other queue implementations get plain adds", func(t *testing.T) {
		fake := newFakeQueue("external")
		queues.Add(fake)

		require.NoError(t, p.Add(ctx, FlowJob{Name: "ship", Queue: "external", Data: []byte(`{}`)}))
		require.Len(t, fake.adds, 1)
		assert.Equal(t, "ship", fake.adds[0].Name)
	})
}
