package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cormons/controlstock/internal/model"
)

type harness struct {
	wf        *Workflow
	api       *fakeAPI
	presenter *recordingPresenter
	prompter  *fakePrompter
	entry     *fakeEntry
	list      *fakeList
	nav       *fakeNavigator
	storage   *MemoryStorage
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		api:       &fakeAPI{},
		presenter: &recordingPresenter{},
		prompter:  &fakePrompter{answer: true},
		entry:     &fakeEntry{},
		list:      &fakeList{},
		nav:       &fakeNavigator{},
		storage:   NewMemoryStorage(map[string]string{KeySessionActive: "true"}),
	}
	h.wf = &Workflow{
		API:       h.api,
		Tokens:    TokenResolver{Cookies: fakeCookies{KeyAuthToken: `"tok-1"`}},
		Presenter: h.presenter,
		Prompter:  h.prompter,
		Entry:     h.entry,
		List:      h.list,
		Storage:   h.storage,
		Navigator: h.nav,
		Guard: &SessionGuard{
			Storage:         h.storage,
			Presenter:       h.presenter,
			Navigator:       h.nav,
			DefaultLoginURL: "https://login.example/",
		},
	}
	t.Cleanup(h.wf.Close)
	return h
}

var widget = model.PendingRequest{ID: "42", Code: "ABC", Description: "Widget"}

func okResp(body string) *Response { return &Response{Status: 200, Body: []byte(body)} }

func TestSubmitSuccess(t *testing.T) {
	h := newHarness(t)
	h.api.regResp = okResp(`{"estado": true, "mensaje": "OK"}`)

	h.wf.Select(widget)
	require.Equal(t, Selected, h.wf.State())
	h.entry.setInput("5")

	out, err := h.wf.Confirm(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, out.Kind)

	calls := h.api.registers()
	require.Len(t, calls, 1)
	assert.Equal(t, registerCall{Token: "tok-1", ID: "42", Quantity: "5"}, calls[0])

	assert.Contains(t, h.presenter.all(), presented{Message: "OK", Severity: Success})
	assert.Nil(t, h.wf.Selection(), "selection cleared")
	assert.False(t, h.entry.isBusy(), "confirm control re-enabled")
	assert.Equal(t, []string{BusyLabel}, h.entry.labels)
	assert.False(t, h.entry.open, "entry surface closed")
	assert.Equal(t, 1, h.api.lists(), "list refreshed")
	assert.Equal(t, Succeeded, h.wf.State())
}

func TestSubmitSuccessWithoutMessage(t *testing.T) {
	h := newHarness(t)
	h.api.regResp = okResp(`{"estado": "T"}`)

	h.wf.Select(widget)
	h.entry.setInput("1.5")
	out, err := h.wf.Confirm(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, out.Kind)
	assert.Empty(t, h.presenter.all(), "no toast without a server message")
}

func TestSubmitNegativeNeverReachesNetwork(t *testing.T) {
	h := newHarness(t)
	h.wf.Select(widget)
	h.entry.setInput("-1")
	focusBefore := h.entry.focused

	_, err := h.wf.Confirm(context.Background())

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, Negative, verr.Kind)
	assert.Empty(t, h.api.registers())
	assert.Equal(t, []presented{{Message: MsgInvalidQuantity, Severity: Warning}}, h.presenter.all())
	assert.Equal(t, focusBefore+1, h.entry.focused, "input refocused")
	assert.Equal(t, Selected, h.wf.State())
}

func TestSubmitEmptyQuantity(t *testing.T) {
	h := newHarness(t)
	h.wf.Select(widget)
	h.entry.setInput("   ")

	_, err := h.wf.Confirm(context.Background())
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, Empty, verr.Kind)
	assert.Equal(t, MsgEmptyQuantity, h.presenter.all()[0].Message)
}

func TestSubmitServerRejection(t *testing.T) {
	h := newHarness(t)
	h.api.regResp = okResp(`{"estado": false, "mensaje": "Código inválido"}`)

	h.wf.Select(widget)
	h.entry.setInput("3")
	out, err := h.wf.Confirm(context.Background())
	require.NoError(t, err)

	assert.Equal(t, OutcomeRejected, out.Kind)
	assert.Equal(t, []presented{{Message: "Código inválido", Severity: Error}}, h.presenter.all())
	assert.False(t, h.entry.isBusy(), "confirm control restored")
	assert.Equal(t, 1, h.entry.restores)
	assert.NotNil(t, h.wf.Selection(), "selection kept for a retry")
	assert.Equal(t, Failed, h.wf.State())
	assert.Zero(t, h.api.lists(), "no refresh after rejection")
}

func TestSubmitRejectionWithoutMessage(t *testing.T) {
	h := newHarness(t)
	h.api.regResp = okResp(`{"estado": false}`)

	h.wf.Select(widget)
	h.entry.setInput("3")
	_, err := h.wf.Confirm(context.Background())
	require.NoError(t, err)
	assert.Equal(t, MsgRegisterFailed, h.presenter.all()[0].Message)
}

func TestSubmitUnauthorized(t *testing.T) {
	h := newHarness(t)
	h.api.regResp = &Response{Status: 401, Body: []byte(`{"redirect": "https://login.example/?logout=1", "error": "Sesión inválida"}`)}

	h.wf.Select(widget)
	h.entry.setInput("5")
	out, err := h.wf.Confirm(context.Background())
	require.NoError(t, err)

	assert.Equal(t, OutcomeSessionExpired, out.Kind)
	assert.Equal(t, "https://login.example/?logout=1", out.RedirectURL)

	shown := h.presenter.all()
	require.Len(t, shown, 1)
	assert.Equal(t, "Sesión inválida", shown[0].Message)
	assert.Equal(t, BlockingInfo, shown[0].Severity)
	assert.Zero(t, h.api.lists(), "no list refresh")
	assert.Equal(t, Expired, h.wf.State())
	assert.True(t, h.entry.isBusy(), "interaction stays frozen")

	v, _ := h.storage.Get(KeySessionActive)
	assert.Equal(t, "false", v)
	v, _ = h.storage.Get(KeyRequireCredentials)
	assert.Equal(t, "true", v)

	require.Empty(t, h.nav.urls, "never navigates without the operator")
	h.presenter.actions[0]()
	assert.Equal(t, []string{"https://login.example/?logout=1"}, h.nav.urls)

	// The workflow is abandoned in place.
	h.wf.Select(widget)
	out, err = h.wf.Confirm(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, out.Kind)
	assert.Len(t, h.api.registers(), 1)
}

func TestSubmitExpiryMarkerInBody(t *testing.T) {
	h := newHarness(t)
	h.api.regResp = okResp(`{"estado": false, "mensaje": "Sesión expirada, ingrese nuevamente"}`)

	h.wf.Select(widget)
	h.entry.setInput("5")
	out, err := h.wf.Confirm(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSessionExpired, out.Kind)
	assert.Equal(t, "https://login.example/", out.RedirectURL)
	assert.Equal(t, Expired, h.wf.State())
}

func TestSubmitNetworkFailure(t *testing.T) {
	h := newHarness(t)
	h.api.regErr = errors.New("dial tcp: connection refused")

	h.wf.Select(widget)
	h.entry.setInput("5")
	out, err := h.wf.Confirm(context.Background())
	require.NoError(t, err)

	assert.Equal(t, OutcomeServerError, out.Kind)
	assert.Equal(t, []presented{{Message: MsgCommunication, Severity: Error}}, h.presenter.all())
	assert.False(t, h.entry.isBusy(), "confirm control re-enabled")
}

func TestSubmitUnexpectedStatus(t *testing.T) {
	h := newHarness(t)
	h.api.regResp = &Response{Status: 502, Body: []byte(`{"estado": false, "mensaje": "Sin respuesta del servidor"}`)}

	h.wf.Select(widget)
	h.entry.setInput("5")
	out, err := h.wf.Confirm(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeServerError, out.Kind)
	assert.Equal(t, MsgCommunication, h.presenter.all()[0].Message)
}

func TestConfirmWithoutSelection(t *testing.T) {
	h := newHarness(t)
	_, err := h.wf.Confirm(context.Background())
	assert.ErrorIs(t, err, ErrNoSelection)
	assert.Equal(t, []presented{{Message: MsgNoSelection, Severity: Error}}, h.presenter.all())
}

func TestConfirmWithoutCredential(t *testing.T) {
	h := newHarness(t)
	h.wf.Tokens = TokenResolver{Cookies: fakeCookies{KeyAuthToken: `""`}}

	h.wf.Select(widget)
	h.entry.setInput("5")
	_, err := h.wf.Confirm(context.Background())
	assert.ErrorIs(t, err, ErrMissingCredential)
	assert.Equal(t, MsgNoToken, h.presenter.all()[0].Message)
	assert.Empty(t, h.api.registers())
	assert.Equal(t, Selected, h.wf.State())
}

func TestConfirmDeclined(t *testing.T) {
	h := newHarness(t)
	h.prompter.answer = false

	h.wf.Select(widget)
	h.entry.setInput("5")
	out, err := h.wf.Confirm(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeDeclined, out.Kind)
	assert.Empty(t, h.api.registers())
	assert.Equal(t, Selected, h.wf.State())
	assert.Equal(t, []string{"¿Está seguro que desea registrar 5 unidades para el código ABC?"}, h.prompter.prompts)
}

func TestConfirmPromptIncludesWarehouse(t *testing.T) {
	h := newHarness(t)
	h.prompter.answer = false
	h.api.listResp = okResp(`{"pendientes": [["42", "ABC", "Widget", "2024-12-01"]], "deposito": "Depósito Central"}`)
	require.NoError(t, h.wf.Refresh(context.Background()))

	h.wf.Select(widget)
	h.entry.setInput(" 7 ")
	_, err := h.wf.Confirm(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"¿Está seguro que desea registrar 7 unidades para el código ABC? (Depósito Central)"}, h.prompter.prompts)
}

func TestConfirmIsNotReentrant(t *testing.T) {
	h := newHarness(t)
	h.api.regResp = okResp(`{"estado": true, "mensaje": "OK"}`)
	h.api.gate = make(chan struct{})
	h.api.started = make(chan struct{}, 1)

	h.wf.Select(widget)
	h.entry.setInput("5")

	done := make(chan Outcome, 1)
	go func() {
		out, _ := h.wf.Confirm(context.Background())
		done <- out
	}()
	<-h.api.started

	assert.Equal(t, Submitting, h.wf.State())
	assert.True(t, h.entry.isBusy(), "confirm control disabled while submitting")
	second, err := h.wf.Confirm(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, second.Kind)

	close(h.api.gate)
	select {
	case out := <-done:
		assert.Equal(t, OutcomeSuccess, out.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("submission did not complete")
	}
	assert.Len(t, h.api.registers(), 1)
}

func TestStaleCompletionIsDiscarded(t *testing.T) {
	h := newHarness(t)
	h.api.regResp = okResp(`{"estado": false, "mensaje": "Código inválido"}`)
	h.api.gate = make(chan struct{})
	h.api.started = make(chan struct{}, 1)

	h.wf.Select(widget)
	h.entry.setInput("5")

	done := make(chan Outcome, 1)
	go func() {
		out, _ := h.wf.Confirm(context.Background())
		done <- out
	}()
	<-h.api.started

	other := model.PendingRequest{ID: "43", Code: "DEF", Description: "Gadget"}
	h.wf.Select(other)
	close(h.api.gate)

	var out Outcome
	select {
	case out = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("submission did not complete")
	}
	assert.Equal(t, OutcomeStale, out.Kind)
	assert.Empty(t, h.presenter.all(), "no alert for a stale result")
	assert.False(t, h.entry.isBusy(), "confirm control restored")
	assert.Zero(t, h.api.lists(), "no refresh for a stale result")
	assert.Equal(t, "43", h.wf.Selection().ID)
	assert.Equal(t, Selected, h.wf.State())
}

// submitThenReselect starts a submission of widget, selects another request
// while it is in flight and releases the response.
func submitThenReselect(t *testing.T, h *harness, resp *Response) Outcome {
	t.Helper()
	h.api.regResp = resp
	h.api.gate = make(chan struct{})
	h.api.started = make(chan struct{}, 1)

	h.wf.Select(widget)
	h.entry.setInput("5")

	done := make(chan Outcome, 1)
	go func() {
		out, _ := h.wf.Confirm(context.Background())
		done <- out
	}()
	<-h.api.started

	h.wf.Select(model.PendingRequest{ID: "43", Code: "DEF", Description: "Gadget"})
	close(h.api.gate)

	select {
	case out := <-done:
		return out
	case <-time.After(2 * time.Second):
		t.Fatal("submission did not complete")
		return Outcome{}
	}
}

func TestStaleCompletionStillExpiresSession(t *testing.T) {
	tests := []struct {
		name     string
		resp     *Response
		redirect string
		message  string
	}{
		{
			"unauthorized",
			&Response{Status: 401, Body: []byte(`{"redirect": "https://login.example/?logout=1", "error": "Sesión inválida"}`)},
			"https://login.example/?logout=1",
			"Sesión inválida",
		},
		{
			"expiry marker",
			okResp(`{"estado": false, "mensaje": "Sesión expirada"}`),
			"https://login.example/",
			"Sesión expirada",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			out := submitThenReselect(t, h, tc.resp)

			assert.Equal(t, OutcomeSessionExpired, out.Kind)
			assert.Equal(t, tc.redirect, out.RedirectURL)
			assert.Equal(t, Expired, h.wf.State())
			assert.Equal(t, []presented{{Message: tc.message, Severity: BlockingInfo, Action: LoginActionLabel}}, h.presenter.all())

			v, _ := h.storage.Get(KeySessionActive)
			assert.Equal(t, "false", v)
			assert.Zero(t, h.api.lists(), "no refresh after expiry")

			h.presenter.actions[0]()
			assert.Equal(t, []string{tc.redirect}, h.nav.urls)
		})
	}
}

func TestStaleAcceptedCountRefreshesList(t *testing.T) {
	h := newHarness(t)
	out := submitThenReselect(t, h, okResp(`{"estado": true, "mensaje": "OK"}`))

	assert.Equal(t, OutcomeStale, out.Kind)
	assert.Equal(t, 1, h.api.lists(), "registered request leaves the list")
	assert.Empty(t, h.presenter.all(), "no toast for a stale result")
	assert.False(t, h.entry.isBusy())
	require.NotNil(t, h.wf.Selection())
	assert.Equal(t, "43", h.wf.Selection().ID, "new selection kept")
	assert.Equal(t, Selected, h.wf.State())
}

func TestStaleNetworkFailureIsSilent(t *testing.T) {
	h := newHarness(t)
	h.api.regErr = errors.New("connection reset")
	out := submitThenReselect(t, h, nil)

	assert.Equal(t, OutcomeStale, out.Kind)
	assert.Empty(t, h.presenter.all())
	assert.Zero(t, h.api.lists())
}

func TestExpiryWithoutPresenter(t *testing.T) {
	h := newHarness(t)
	h.wf.Presenter = nil
	h.wf.Guard = nil
	h.api.regResp = &Response{Status: 401, Body: []byte(`{}`)}

	h.wf.Select(widget)
	h.entry.setInput("5")
	out, err := h.wf.Confirm(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSessionExpired, out.Kind)
	assert.Equal(t, Expired, h.wf.State())
	v, _ := h.storage.Get(KeyRequireCredentials)
	assert.Equal(t, "true", v)
}

func TestDismissClearsSelection(t *testing.T) {
	h := newHarness(t)
	h.wf.Select(widget)
	require.True(t, h.entry.open)

	h.wf.Dismiss()
	assert.Nil(t, h.wf.Selection())
	assert.False(t, h.entry.open)
	assert.Equal(t, Idle, h.wf.State())
}

func TestSelectOpensEntry(t *testing.T) {
	h := newHarness(t)
	h.entry.setInput("leftover")
	h.wf.Select(widget)

	require.Len(t, h.entry.opened, 1)
	assert.Equal(t, widget, h.entry.opened[0])
	assert.Equal(t, 1, h.entry.focused)
}

func TestRefreshRendersBothShapes(t *testing.T) {
	h := newHarness(t)
	h.api.listResp = okResp(`{"pendientes": [
		["SOL001", "PROD001", "Tornillo", "2024-12-01"],
		{"idSolicitud": "SOL002", "codigo": "PROD002", "descripcion": "Tuerca", "fecha": "2024-12-02"}
	], "deposito": "Central"}`)

	var events []Event
	unsubscribe := h.wf.Subscribe(func(e Event) { events = append(events, e) })
	defer unsubscribe()

	require.NoError(t, h.wf.Refresh(context.Background()))

	require.Len(t, h.list.rows, 2)
	assert.Equal(t, "SOL001", h.list.rows[0].Data[model.AttrID])
	assert.Equal(t, "PROD002", h.list.rows[1].Data[model.AttrCode])
	assert.Equal(t, 1, h.list.loading)
	assert.Equal(t, []bool{false, true}, h.list.refreshEnabled, "refresh disabled during fetch")
	assert.Equal(t, "Central", h.wf.Warehouse())
	v, _ := h.storage.Get(KeyWarehouse)
	assert.Equal(t, "Central", v)

	require.Len(t, events, 1)
	assert.Equal(t, EventListRefreshed, events[0].Kind)
	assert.Equal(t, 2, events[0].Count)

	// Clicking a row selects the record rebuilt from the row.
	h.list.rows[1].OnClick()
	sel := h.wf.Selection()
	require.NotNil(t, sel)
	assert.Equal(t, model.PendingRequest{ID: "SOL002", Code: "PROD002", Description: "Tuerca", RequestedAt: "2024-12-02"}, *sel)
}

func TestRefreshEmpty(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.wf.Refresh(context.Background()))
	assert.Empty(t, h.list.rows)
	assert.Equal(t, []string{MsgNoPending}, h.list.messages)
}

func TestRefreshFailure(t *testing.T) {
	h := newHarness(t)
	h.api.listErr = errors.New("timeout")
	require.NoError(t, h.wf.Refresh(context.Background()))
	assert.Equal(t, []string{MsgCommunication}, h.list.messages)
	assert.Equal(t, []bool{false, true}, h.list.refreshEnabled, "refresh re-enabled after failure")
}

func TestRefreshServerError(t *testing.T) {
	h := newHarness(t)
	h.api.listResp = &Response{Status: 502, Body: []byte(`{"error": "Error al obtener stock pendientes"}`)}
	require.NoError(t, h.wf.Refresh(context.Background()))
	assert.Equal(t, []string{MsgListFailed}, h.list.messages)
}

func TestRefreshUnauthorized(t *testing.T) {
	h := newHarness(t)
	h.api.listResp = &Response{Status: 401, Body: []byte(`{"redirect": "https://login.example/x", "mensaje": "No hay token de autenticación"}`)}

	require.NoError(t, h.wf.Refresh(context.Background()))
	assert.Equal(t, Expired, h.wf.State())
	shown := h.presenter.all()
	require.Len(t, shown, 1)
	assert.Equal(t, "No hay token de autenticación", shown[0].Message)
	assert.Equal(t, false, h.list.refreshEnabled[len(h.list.refreshEnabled)-1], "refresh stays disabled")

	// Later refreshes do nothing.
	require.NoError(t, h.wf.Refresh(context.Background()))
	assert.Equal(t, 1, h.api.lists())
}

func TestRefreshSingleFlight(t *testing.T) {
	h := newHarness(t)
	blocking := &blockingLister{fakeAPI: h.api, gate: make(chan struct{}), started: make(chan struct{}, 1)}
	h.wf.API = blocking

	done := make(chan error, 1)
	go func() { done <- h.wf.Refresh(context.Background()) }()
	<-blocking.started

	assert.ErrorIs(t, h.wf.Refresh(context.Background()), ErrRefreshInFlight)
	close(blocking.gate)
	require.NoError(t, <-done)
}

type blockingLister struct {
	*fakeAPI
	gate    chan struct{}
	started chan struct{}
}

func (b *blockingLister) ListPending(ctx context.Context) (*Response, error) {
	b.started <- struct{}{}
	<-b.gate
	return b.fakeAPI.ListPending(ctx)
}

func TestSubscribeAndClose(t *testing.T) {
	h := newHarness(t)

	var a, b []Event
	unsubA := h.wf.Subscribe(func(e Event) { a = append(a, e) })
	h.wf.Subscribe(func(e Event) { b = append(b, e) })

	h.wf.Select(widget)
	require.Len(t, a, 1)
	assert.Equal(t, Event{Kind: EventStateChanged, From: Idle, To: Selected, Request: &widget}, a[0])

	unsubA()
	h.wf.Dismiss()
	assert.Len(t, a, 1, "unsubscribed handler not called")
	assert.Len(t, b, 2)

	h.wf.Close()
	h.wf.Select(widget)
	assert.Len(t, b, 2, "closed workflow has no subscribers")
}

func TestSubmitEventSequence(t *testing.T) {
	h := newHarness(t)
	h.api.regResp = okResp(`{"estado": true, "mensaje": "OK"}`)

	var states []State
	h.wf.Subscribe(func(e Event) {
		if e.Kind == EventStateChanged {
			states = append(states, e.To)
		}
	})

	h.wf.Select(widget)
	h.entry.setInput("5")
	_, err := h.wf.Confirm(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []State{Selected, ConfirmPending, Submitting, Succeeded}, states)
}

func TestLogout(t *testing.T) {
	h := newHarness(t)
	h.wf.LogoutURL = "https://login.example/logout/"

	h.prompter.answer = false
	assert.False(t, h.wf.Logout())
	assert.Empty(t, h.nav.urls)

	h.prompter.answer = true
	assert.True(t, h.wf.Logout())
	assert.Equal(t, []string{"https://login.example/logout/"}, h.nav.urls)
	assert.Equal(t, MsgLogoutConfirm, h.prompter.prompts[0])

	v, _ := h.storage.Get(KeyRequireCredentials)
	assert.Equal(t, "true", v)
	v, _ = h.storage.Get(KeySessionActive)
	assert.Equal(t, "false", v)
}
