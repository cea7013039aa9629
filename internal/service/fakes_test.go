package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/Strob0t/mailflow/internal/domain/email"
	"github.com/Strob0t/mailflow/internal/port/dispatch"
)

var errDown = errors.New("connection refused")

// postCall is one recorded PostJSON invocation.
type postCall struct {
	URL     string
	Payload email.ClassifiedEmail
}

// fakePoster answers PostJSON from a per-URL table. URLs without an entry
// fail with errDown.
type fakePoster struct {
	mu        sync.Mutex
	responses map[string]json.RawMessage
	failures  map[string]error
	calls     []postCall
}

func newFakePoster() *fakePoster {
	return &fakePoster{
		responses: make(map[string]json.RawMessage),
		failures:  make(map[string]error),
	}
}

func (p *fakePoster) up(url, body string) *fakePoster {
	p.responses[url] = json.RawMessage(body)
	return p
}

func (p *fakePoster) down(url string, err error) *fakePoster {
	p.failures[url] = err
	return p
}

func (p *fakePoster) PostJSON(_ context.Context, url string, body any) (json.RawMessage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ce, _ := body.(email.ClassifiedEmail)
	p.calls = append(p.calls, postCall{URL: url, Payload: ce})

	if err, ok := p.failures[url]; ok {
		return nil, err
	}
	if resp, ok := p.responses[url]; ok {
		return resp, nil
	}
	return nil, errDown
}

func (p *fakePoster) urls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.calls))
	for i, c := range p.calls {
		out[i] = c.URL
	}
	return out
}

// fakePublisher records published events.
type fakePublisher struct {
	mu       sync.Mutex
	subjects []string
	data     [][]byte
	err      error
}

func (p *fakePublisher) Publish(_ context.Context, subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.subjects = append(p.subjects, subject)
	p.data = append(p.data, data)
	return nil
}

func (p *fakePublisher) Close() error      { return nil }
func (p *fakePublisher) IsConnected() bool { return true }

func (p *fakePublisher) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.subjects...)
}

var _ dispatch.Poster = (*fakePoster)(nil)

func sampleEmail() email.NormalizedEmail {
	return email.NormalizedEmail{
		Sender:       "accounting@vendor.com",
		Subject:      "Invoice #2024-001 - Payment Due",
		Body:         "Attached is the invoice for services rendered last month.",
		ReceivedTime: "2024-05-01T09:30:00",
	}
}
