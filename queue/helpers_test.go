package queue

import (
	"context"
	"strings"
	"sync"
)

type sendEmail struct {
	To string `json:"to"`
}

func (sendEmail) Spec() Spec {
	return Spec{Queue: "emails", Name: "send", Options: Options{OptAttempts: 3}}
}

type orderPlaced struct {
	ID string `json:"id"`
}

func (orderPlaced) Spec() Spec {
	return Spec{
		Name:    "order.placed",
		Kind:    KindFanout,
		Options: Options{OptAttempts: 3, OptDelay: 1000, OptPriority: 1},
	}
}

type buildReport struct {
	ReportID string `json:"report_id"`

	flowName string
	children []Handlable
}

func (b buildReport) Spec() Spec {
	return Spec{
		Name:     "build",
		Queue:    "reports",
		Kind:     KindFlow,
		FlowName: b.flowName,
		Prefix:   "{reports}",
		Children: b.children,
	}
}

type renderPage struct {
	Page int `json:"page"`
}

func (renderPage) Spec() Spec {
	return Spec{Queue: "pages", Name: "render"}
}

// upperText encodes its payload as plain text.
type upperText struct {
	Text string
}

func (*upperText) Spec() Spec { return Spec{Queue: "text", Name: "upper"} }

func (u *upperText) EncodePayload() ([]byte, error) { return []byte(u.Text), nil }

func (u *upperText) DecodePayload(data []byte) error {
	u.Text = strings.ToUpper(string(data))
	return nil
}

type fakeQueue struct {
	name string
	err  error

	mu    sync.Mutex
	adds  []Job
	bulks [][]Job
}

func newFakeQueue(name string) *fakeQueue { return &fakeQueue{name: name} }

func (q *fakeQueue) Name() string { return q.name }

func (q *fakeQueue) Add(ctx context.Context, name string, data []byte, opts Options) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.adds = append(q.adds, Job{Name: name, Data: data, Options: opts})
	return nil
}

func (q *fakeQueue) AddBulk(ctx context.Context, jobs []Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.bulks = append(q.bulks, jobs)
	return nil
}

type fakeFlow struct {
	err   error
	adds  []FlowJob
	bulks [][]FlowJob
}

func (f *fakeFlow) Add(ctx context.Context, job FlowJob) error {
	if f.err != nil {
		return f.err
	}
	f.adds = append(f.adds, job)
	return nil
}

func (f *fakeFlow) AddBulk(ctx context.Context, jobs []FlowJob) error {
	if f.err != nil {
		return f.err
	}
	f.bulks = append(f.bulks, jobs)
	return nil
}
