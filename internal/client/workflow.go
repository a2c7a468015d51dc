// Package client implements the operator side of the stock-count
// confirmation workflow: fetching pending requests, selecting one, entering
// the counted quantity and submitting it, with session-expiry handling. UI
// surfaces and the server are injected so the workflow runs against a
// terminal, a test fake or any other front end.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/cormons/controlstock/internal/model"
)

// State is a workflow state.
type State int

const (
	Idle State = iota
	Selected
	ConfirmPending
	Submitting
	Succeeded
	Failed
	Expired
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Selected:
		return "selected"
	case ConfirmPending:
		return "confirm-pending"
	case Submitting:
		return "submitting"
	case Succeeded:
		return "success"
	case Failed:
		return "failed"
	case Expired:
		return "expired"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Workflow messages.
const (
	MsgNoSelection    = "No hay solicitud seleccionada"
	MsgNoToken        = "No hay token de autenticación"
	MsgRegisterFailed = "Error al registrar control"
	MsgCommunication  = "Error de comunicación con el servidor. Intente nuevamente."
	MsgLogoutConfirm  = "¿Cerrar sesión?"
	MsgListFailed     = "Error al obtener stock pendientes"
	BusyLabel         = "Guardando..."
	DefaultLogoutURL  = "http://login.cormonsapp.com/logout/"
)

// Local failures returned by Confirm.
var (
	ErrNoSelection       = errors.New("no request selected")
	ErrMissingCredential = errors.New("no authentication token")
)

// OutcomeKind tags the result of a submission.
type OutcomeKind int

const (
	// OutcomeIgnored: a submission was already in flight.
	OutcomeIgnored OutcomeKind = iota
	// OutcomeDeclined: the operator declined the confirmation prompt.
	OutcomeDeclined
	OutcomeSuccess
	// OutcomeRejected: the server answered with estado false.
	OutcomeRejected
	OutcomeSessionExpired
	// OutcomeServerError: transport failure or unexpected response.
	OutcomeServerError
	// OutcomeStale: the selection changed while the request was in flight.
	OutcomeStale
)

// Outcome is the result of Confirm.
type Outcome struct {
	Kind        OutcomeKind
	Message     string
	RedirectURL string
}

// EntrySurface is where the quantity is typed.
type EntrySurface interface {
	// Open shows code and description read-only and clears and focuses the
	// quantity input.
	Open(req model.PendingRequest)
	Close()
	Input() string
	Focus()
	// SetBusy disables the confirm control showing label, or restores it.
	SetBusy(busy bool, label string)
}

// EventKind identifies workflow events.
type EventKind int

const (
	EventStateChanged EventKind = iota
	EventListRefreshed
)

// Event is published to subscribers.
type Event struct {
	Kind    EventKind
	From    State
	To      State
	Request *model.PendingRequest
	Count   int
}

// Workflow owns the selection and drives one submission at a time.
type Workflow struct {
	API       API
	Tokens    TokenResolver
	Presenter Presenter
	Prompter  Prompter
	Entry     EntrySurface
	List      ListSurface
	Guard     *SessionGuard
	Storage   Storage
	Navigator Navigator
	LogoutURL string
	Logger    *slog.Logger

	renderer *ListRenderer

	mu         sync.Mutex
	state      State
	selected   *model.PendingRequest
	generation uint64
	submitting bool
	refreshing bool
	expired    bool
	deposito   string

	subMu  sync.Mutex
	nextID int
	subs   map[int]func(Event)
}

// Renderer returns the list renderer wired to Select.
func (w *Workflow) Renderer() *ListRenderer {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.renderer == nil {
		w.renderer = &ListRenderer{Surface: w.List, OnSelect: w.Select}
	}
	return w.renderer
}

func (w *Workflow) logger() *slog.Logger {
	if w.Logger != nil {
		return w.Logger
	}
	return slog.Default()
}

// State returns the current state.
func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Selection returns a copy of the selected request, or nil.
func (w *Workflow) Selection() *model.PendingRequest {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.selected == nil {
		return nil
	}
	sel := *w.selected
	return &sel
}

// Warehouse returns the warehouse context of the last refresh.
func (w *Workflow) Warehouse() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.deposito
}

// Subscribe registers fn for every event. The returned func unsubscribes.
func (w *Workflow) Subscribe(fn func(Event)) (unsubscribe func()) {
	w.subMu.Lock()
	defer w.subMu.Unlock()
	if w.subs == nil {
		w.subs = make(map[int]func(Event))
	}
	w.nextID++
	id := w.nextID
	w.subs[id] = fn
	return func() {
		w.subMu.Lock()
		defer w.subMu.Unlock()
		delete(w.subs, id)
	}
}

// Close removes every subscriber.
func (w *Workflow) Close() {
	w.subMu.Lock()
	defer w.subMu.Unlock()
	w.subs = nil
}

func (w *Workflow) publish(e Event) {
	w.subMu.Lock()
	fns := make([]func(Event), 0, len(w.subs))
	for _, fn := range w.subs {
		fns = append(fns, fn)
	}
	w.subMu.Unlock()
	for _, fn := range fns {
		fn(e)
	}
}

// transition must be called with mu held; it returns the event to publish
// after unlocking.
func (w *Workflow) transition(to State) Event {
	e := Event{Kind: EventStateChanged, From: w.state, To: to}
	if w.selected != nil {
		sel := *w.selected
		e.Request = &sel
	}
	w.state = to
	return e
}

func (w *Workflow) setState(to State) {
	w.mu.Lock()
	e := w.transition(to)
	w.mu.Unlock()
	w.publish(e)
}

// Select makes req the selection and opens the entry surface. It is ignored
// once the session has expired.
func (w *Workflow) Select(req model.PendingRequest) {
	w.mu.Lock()
	if w.expired {
		w.mu.Unlock()
		return
	}
	w.generation++
	w.selected = &req
	e := w.transition(Selected)
	w.mu.Unlock()

	w.Entry.Open(req)
	w.publish(e)
}

// Dismiss closes the entry surface and clears the selection.
func (w *Workflow) Dismiss() {
	w.mu.Lock()
	if w.expired {
		w.mu.Unlock()
		return
	}
	w.generation++
	w.selected = nil
	e := w.transition(Idle)
	w.mu.Unlock()

	w.Entry.Close()
	w.publish(e)
}

// Confirm validates the entry, asks the operator to confirm and submits it.
// Local failures (no selection, invalid quantity, no credential) are
// presented and returned as errors; everything else is reported through the
// Outcome.
func (w *Workflow) Confirm(ctx context.Context) (Outcome, error) {
	w.mu.Lock()
	if w.submitting || w.expired {
		w.mu.Unlock()
		return Outcome{Kind: OutcomeIgnored}, nil
	}
	if w.selected == nil {
		w.mu.Unlock()
		w.present(MsgNoSelection, Error)
		return Outcome{}, ErrNoSelection
	}
	req := *w.selected
	deposito := w.deposito
	w.mu.Unlock()

	raw := strings.TrimSpace(w.Entry.Input())
	if _, err := ValidateInput(raw); err != nil {
		var verr *ValidationError
		errors.As(err, &verr)
		w.present(verr.Message(), Warning)
		w.Entry.Focus()
		return Outcome{}, err
	}

	token, ok := w.Tokens.Resolve()
	if !ok {
		w.present(MsgNoToken, Error)
		return Outcome{}, ErrMissingCredential
	}

	w.setState(ConfirmPending)
	if !w.confirmPrompt(confirmMessage(raw, req.Code, deposito)) {
		w.mu.Lock()
		var e Event
		publish := w.state == ConfirmPending
		if publish {
			e = w.transition(Selected)
		}
		w.mu.Unlock()
		if publish {
			w.publish(e)
		}
		return Outcome{Kind: OutcomeDeclined}, nil
	}

	w.mu.Lock()
	if w.submitting || w.expired || w.selected == nil || w.selected.ID != req.ID {
		w.mu.Unlock()
		return Outcome{Kind: OutcomeIgnored}, nil
	}
	w.submitting = true
	gen := w.generation
	e := w.transition(Submitting)
	w.mu.Unlock()
	w.publish(e)

	w.Entry.SetBusy(true, BusyLabel)
	w.logger().Info("submitting count", "id", req.ID, "quantity", raw)

	resp, err := w.API.Register(ctx, token, req.ID, raw)
	return w.complete(ctx, gen, req, resp, err), nil
}

func confirmMessage(qty, code, deposito string) string {
	msg := fmt.Sprintf("¿Está seguro que desea registrar %s unidades para el código %s?", qty, code)
	if deposito != "" {
		msg += " (" + deposito + ")"
	}
	return msg
}

func (w *Workflow) confirmPrompt(msg string) bool {
	if w.Prompter == nil {
		return true
	}
	return w.Prompter.Confirm(msg)
}

type resultBody struct {
	Estado  json.RawMessage `json:"estado"`
	Mensaje string          `json:"mensaje"`
}

func (w *Workflow) complete(ctx context.Context, gen uint64, req model.PendingRequest, resp *Response, err error) Outcome {
	w.mu.Lock()
	w.submitting = false
	stale := gen != w.generation
	w.mu.Unlock()

	if err != nil {
		w.logger().Error("submitting count", "id", req.ID, "error", err)
		if stale {
			return w.discard(ctx, req, false)
		}
		return w.fail(MsgCommunication, OutcomeServerError)
	}

	// Expiry ends the session whatever is selected now.
	if st := w.guard().Inspect(resp.Status, resp.Body); st.Expired {
		w.expire(st)
		return Outcome{Kind: OutcomeSessionExpired, Message: st.Message, RedirectURL: st.RedirectURL}
	}

	var body resultBody
	valid := resp.Status >= 200 && resp.Status < 300 && json.Unmarshal(resp.Body, &body) == nil
	if stale {
		return w.discard(ctx, req, valid && model.ParseFlag(body.Estado))
	}
	if !valid {
		w.logger().Error("unexpected registration response", "id", req.ID, "status", resp.Status, "body", truncate(resp.Body))
		return w.fail(MsgCommunication, OutcomeServerError)
	}

	if !model.ParseFlag(body.Estado) {
		msg := body.Mensaje
		if msg == "" {
			msg = MsgRegisterFailed
		}
		return w.fail(msg, OutcomeRejected)
	}

	w.mu.Lock()
	w.selected = nil
	w.generation++
	e := w.transition(Succeeded)
	w.mu.Unlock()
	w.publish(e)

	w.Entry.SetBusy(false, "")
	if body.Mensaje != "" {
		w.present(body.Mensaje, Success)
	}
	w.Entry.Close()

	w.mu.Lock()
	expired := w.expired
	w.mu.Unlock()

	if !expired {
		if err := w.Refresh(ctx); err != nil {
			w.logger().Warn("refreshing after submission", "error", err)
		}
	}
	return Outcome{Kind: OutcomeSuccess, Message: body.Mensaje}
}

// discard drops the result of a submission whose selection has changed. The
// selection and alerts are left alone; a count the server accepted still
// refreshes the list so the registered request disappears from it.
func (w *Workflow) discard(ctx context.Context, req model.PendingRequest, accepted bool) Outcome {
	w.Entry.SetBusy(false, "")
	w.logger().Info("discarding stale submission result", "id", req.ID, "accepted", accepted)
	if accepted {
		if err := w.Refresh(ctx); err != nil {
			w.logger().Warn("refreshing after stale submission", "error", err)
		}
	}
	return Outcome{Kind: OutcomeStale}
}

// fail restores the confirm control and presents msg. The selection is kept
// so the operator can correct and confirm again.
func (w *Workflow) fail(msg string, kind OutcomeKind) Outcome {
	w.Entry.SetBusy(false, "")
	w.setState(Failed)
	w.present(msg, Error)
	return Outcome{Kind: kind, Message: msg}
}

// expire abandons the workflow in place and hands over to the session guard.
// The confirm and refresh controls stay disabled.
func (w *Workflow) expire(st SessionStatus) {
	w.mu.Lock()
	w.expired = true
	e := w.transition(Expired)
	w.mu.Unlock()
	w.publish(e)

	if w.List != nil {
		w.List.SetRefreshEnabled(false)
	}
	if err := w.guard().Handle(st); err != nil {
		w.logger().Error("presenting session expiry", "error", err)
	}
}

func (w *Workflow) guard() *SessionGuard {
	if w.Guard != nil {
		return w.Guard
	}
	return &SessionGuard{Storage: w.Storage, Presenter: w.Presenter, Navigator: w.Navigator}
}

func (w *Workflow) present(msg string, sev Severity) {
	if w.Presenter == nil {
		return
	}
	if err := w.Presenter.Present(msg, sev); err != nil {
		w.logger().Error("presenting message", "message", msg, "error", err)
	}
}

// ErrRefreshInFlight is returned when a refresh is already running.
var ErrRefreshInFlight = errors.New("refresh already in flight")

type listBody struct {
	Pendientes json.RawMessage `json:"pendientes"`
	Deposito   string          `json:"deposito"`
	Mensaje    string          `json:"mensaje"`
	Error      string          `json:"error"`
}

// Refresh fetches and renders the pending list. The refresh control is
// disabled while it runs and only one refresh runs at a time.
func (w *Workflow) Refresh(ctx context.Context) error {
	w.mu.Lock()
	if w.expired {
		w.mu.Unlock()
		return nil
	}
	if w.refreshing {
		w.mu.Unlock()
		return ErrRefreshInFlight
	}
	w.refreshing = true
	w.mu.Unlock()

	r := w.Renderer()
	w.List.SetRefreshEnabled(false)
	r.Loading()

	count, expired := w.fetch(ctx, r)

	w.mu.Lock()
	w.refreshing = false
	w.mu.Unlock()

	if expired {
		return nil
	}
	w.List.SetRefreshEnabled(true)
	if count >= 0 {
		w.publish(Event{Kind: EventListRefreshed, To: w.State(), Count: count})
	}
	return nil
}

// fetch returns the rendered count, or -1 when nothing was rendered.
func (w *Workflow) fetch(ctx context.Context, r *ListRenderer) (int, bool) {
	resp, err := w.API.ListPending(ctx)
	if err != nil {
		w.logger().Error("listing pending counts", "error", err)
		r.Failure(MsgCommunication)
		return -1, false
	}

	if st := w.guard().Inspect(resp.Status, resp.Body); st.Expired {
		w.expire(st)
		return -1, true
	}

	var body listBody
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		w.logger().Error("decoding pending list", "status", resp.Status, "error", err)
		r.Failure(MsgCommunication)
		return -1, false
	}
	if resp.Status < 200 || resp.Status >= 300 {
		msg := body.Error
		if msg == "" {
			msg = MsgListFailed
		}
		r.Failure(msg)
		return -1, false
	}
	if hasExpiryMarker(body.Error) {
		w.expire(SessionStatus{Expired: true, Message: body.Error, RedirectURL: w.guard().loginURL()})
		return -1, true
	}
	if body.Error != "" {
		r.Failure(body.Error)
		return -1, false
	}

	items, err := model.NormalizePendingList(body.Pendientes)
	if err != nil {
		w.logger().Error("normalizing pending list", "error", err)
		r.Failure(MsgCommunication)
		return -1, false
	}

	w.mu.Lock()
	w.deposito = body.Deposito
	w.mu.Unlock()
	if w.Storage != nil && body.Deposito != "" {
		if err := w.Storage.Set(KeyWarehouse, body.Deposito); err != nil {
			w.logger().Warn("caching warehouse", "error", err)
		}
	}

	r.Render(items)
	return len(items), false
}

// Logout asks for confirmation, marks the session as ended and navigates to
// the logout URL. It reports whether the operator confirmed.
func (w *Workflow) Logout() bool {
	if !w.confirmPrompt(MsgLogoutConfirm) {
		return false
	}
	if w.Storage != nil {
		if err := w.Storage.Set(KeyRequireCredentials, "true"); err != nil {
			w.logger().Warn("setting credentials flag", "error", err)
		}
		if err := w.Storage.Set(KeySessionActive, "false"); err != nil {
			w.logger().Warn("clearing session flag", "error", err)
		}
	}
	url := w.LogoutURL
	if url == "" {
		url = DefaultLogoutURL
	}
	if w.Navigator != nil {
		w.Navigator.Navigate(url)
	}
	return true
}

func truncate(b []byte) string {
	const n = 200
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
