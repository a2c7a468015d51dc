package client

import (
	"context"
	"sync"

	"github.com/cormons/controlstock/internal/model"
)

type registerCall struct {
	Token    Credential
	ID       string
	Quantity string
}

// fakeAPI answers with canned responses. When gate is set, Register blocks
// until it is closed.
type fakeAPI struct {
	mu sync.Mutex

	listResp *Response
	listErr  error
	regResp  *Response
	regErr   error
	gate     chan struct{}
	started  chan struct{}

	listCalls int
	regCalls  []registerCall
}

func (f *fakeAPI) ListPending(ctx context.Context) (*Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listResp == nil && f.listErr == nil {
		return &Response{Status: 200, Body: []byte(`{"pendientes": []}`)}, nil
	}
	return f.listResp, f.listErr
}

func (f *fakeAPI) Register(ctx context.Context, token Credential, id, quantity string) (*Response, error) {
	f.mu.Lock()
	f.regCalls = append(f.regCalls, registerCall{token, id, quantity})
	gate, started := f.gate, f.started
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.regResp, f.regErr
}

func (f *fakeAPI) registers() []registerCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]registerCall(nil), f.regCalls...)
}

func (f *fakeAPI) lists() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls
}

type presented struct {
	Message  string
	Severity Severity
	Action   string
}

// recordingPresenter records what would be shown. Blocking actions are kept
// so tests can trigger them.
type recordingPresenter struct {
	mu      sync.Mutex
	shown   []presented
	actions []func()
}

func (p *recordingPresenter) Present(message string, sev Severity) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shown = append(p.shown, presented{Message: message, Severity: sev})
	return nil
}

func (p *recordingPresenter) PresentBlockingWithAction(message, label string, onAction func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shown = append(p.shown, presented{Message: message, Severity: BlockingInfo, Action: label})
	p.actions = append(p.actions, onAction)
	return nil
}

func (p *recordingPresenter) all() []presented {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]presented(nil), p.shown...)
}

type fakePrompter struct {
	answer  bool
	alerts  []string
	prompts []string
}

func (p *fakePrompter) Alert(message string) { p.alerts = append(p.alerts, message) }

func (p *fakePrompter) Confirm(message string) bool {
	p.prompts = append(p.prompts, message)
	return p.answer
}

type fakeEntry struct {
	mu       sync.Mutex
	input    string
	opened   []model.PendingRequest
	open     bool
	focused  int
	busy     bool
	labels   []string
	restores int
}

func (e *fakeEntry) Open(req model.PendingRequest) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.opened = append(e.opened, req)
	e.open = true
	e.focused++
}

func (e *fakeEntry) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.open = false
}

func (e *fakeEntry) Input() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.input
}

func (e *fakeEntry) setInput(s string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.input = s
}

func (e *fakeEntry) Focus() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.focused++
}

func (e *fakeEntry) SetBusy(busy bool, label string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.busy = busy
	if busy {
		e.labels = append(e.labels, label)
	} else {
		e.restores++
	}
}

func (e *fakeEntry) isBusy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.busy
}

type fakeList struct {
	mu             sync.Mutex
	loading        int
	messages       []string
	rows           []Row
	refreshEnabled []bool
}

func (l *fakeList) ShowLoading(string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loading++
}

func (l *fakeList) ShowMessage(m string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, m)
	l.rows = nil
}

func (l *fakeList) ShowRows(rows []Row) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rows = rows
}

func (l *fakeList) SetRefreshEnabled(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refreshEnabled = append(l.refreshEnabled, enabled)
}

type fakeNavigator struct{ urls []string }

func (n *fakeNavigator) Navigate(url string) { n.urls = append(n.urls, url) }

type fakeCookies map[string]string

func (c fakeCookies) Cookie(name string) (string, bool) {
	v, ok := c[name]
	return v, ok
}
