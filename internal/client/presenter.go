package client

import (
	"errors"
	"sync"
	"time"
)

// Severity selects how a message is presented.
type Severity int

const (
	Info Severity = iota
	Success
	Warning
	Error
	BlockingInfo
)

func (s Severity) String() string {
	switch s {
	case Info:
		return "info"
	case Success:
		return "success"
	case Warning:
		return "warning"
	case Error:
		return "error"
	case BlockingInfo:
		return "blocking"
	default:
		return "unknown"
	}
}

// DefaultToastDuration is how long a toast stays visible.
const DefaultToastDuration = 3000 * time.Millisecond

// ErrSurfaceUnavailable is returned by a surface that cannot show anything.
var ErrSurfaceUnavailable = errors.New("presentation surface unavailable")

// Toast is a non-blocking notification.
type Toast struct {
	ID       int
	Message  string
	Severity Severity
	Duration time.Duration
}

// Toaster shows and removes toasts. Several toasts may be visible at once.
type Toaster interface {
	ShowToast(t Toast) error
	DismissToast(id int)
}

// Modal is a blocking presentation. A non-dismissible modal can only be left
// through its action.
type Modal struct {
	Title       string
	Icon        string
	Message     string
	Severity    Severity
	ActionLabel string
	Dismissible bool
	OnAction    func()
}

// ModalSurface shows blocking modals.
type ModalSurface interface {
	ShowModal(m Modal) error
}

// Prompter is the plain blocking fallback.
type Prompter interface {
	Alert(message string)
	Confirm(message string) bool
}

// Presenter shows user-facing messages.
type Presenter interface {
	Present(message string, sev Severity) error
	PresentBlockingWithAction(message, actionLabel string, onAction func()) error
}

var modalHeaders = map[Severity]struct{ title, icon string }{
	Warning:      {"Atención", "warning"},
	Error:        {"Error", "error"},
	BlockingInfo: {"Información", "info"},
}

// AlertPresenter routes messages to toasts or modals and falls back to the
// Prompter whenever the richer surface is missing or unavailable.
type AlertPresenter struct {
	Toaster       Toaster
	Modals        ModalSurface
	Prompter      Prompter
	ToastDuration time.Duration

	// Schedule runs f after d. It defaults to time.AfterFunc.
	Schedule func(d time.Duration, f func())

	mu     sync.Mutex
	nextID int
	active map[int]struct{}
}

// Present shows message with the given severity.
func (p *AlertPresenter) Present(message string, sev Severity) error {
	switch sev {
	case Success, Info:
		if p.toast(message, sev) {
			return nil
		}
	default:
		h := modalHeaders[sev]
		m := Modal{
			Title:       h.title,
			Icon:        h.icon,
			Message:     message,
			Severity:    sev,
			ActionLabel: "Aceptar",
			Dismissible: true,
		}
		if p.modal(m) {
			return nil
		}
	}
	return p.fallback(message, nil)
}

// PresentBlockingWithAction shows a non-dismissible modal whose only
// affordance runs onAction.
func (p *AlertPresenter) PresentBlockingWithAction(message, actionLabel string, onAction func()) error {
	h := modalHeaders[BlockingInfo]
	m := Modal{
		Title:       h.title,
		Icon:        h.icon,
		Message:     message,
		Severity:    BlockingInfo,
		ActionLabel: actionLabel,
		OnAction:    onAction,
	}
	if p.modal(m) {
		return nil
	}
	return p.fallback(message, onAction)
}

// ActiveToasts returns the ids of toasts not yet expired.
func (p *AlertPresenter) ActiveToasts() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]int, 0, len(p.active))
	for id := range p.active {
		ids = append(ids, id)
	}
	return ids
}

func (p *AlertPresenter) toast(message string, sev Severity) bool {
	if p.Toaster == nil {
		return false
	}
	d := p.ToastDuration
	if d <= 0 {
		d = DefaultToastDuration
	}

	p.mu.Lock()
	p.nextID++
	id := p.nextID
	p.mu.Unlock()

	if err := p.Toaster.ShowToast(Toast{ID: id, Message: message, Severity: sev, Duration: d}); err != nil {
		return false
	}

	p.mu.Lock()
	if p.active == nil {
		p.active = make(map[int]struct{})
	}
	p.active[id] = struct{}{}
	p.mu.Unlock()

	schedule := p.Schedule
	if schedule == nil {
		schedule = func(d time.Duration, f func()) { time.AfterFunc(d, f) }
	}
	schedule(d, func() {
		p.mu.Lock()
		delete(p.active, id)
		p.mu.Unlock()
		p.Toaster.DismissToast(id)
	})
	return true
}

func (p *AlertPresenter) modal(m Modal) bool {
	if p.Modals == nil {
		return false
	}
	return p.Modals.ShowModal(m) == nil
}

func (p *AlertPresenter) fallback(message string, onAction func()) error {
	if p.Prompter == nil {
		return ErrSurfaceUnavailable
	}
	p.Prompter.Alert(message)
	if onAction != nil {
		onAction()
	}
	return nil
}
