package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/cormons/controlstock/internal/client"
	"github.com/cormons/controlstock/internal/logging"
)

const help = `Comandos:
  <n>      seleccionar la solicitud n
  r        actualizar la lista
  salir    cerrar sesión
  q        terminar
`

func main() {
	fs := flag.NewFlagSet("controlstock", flag.ContinueOnError)

	var baseURL string
	fs.StringVar(&baseURL, "url", "http://127.0.0.1:8003/control-stock", "")
	fs.StringVar(&baseURL, "u", "http://127.0.0.1:8003/control-stock", "")

	var token string
	fs.StringVar(&token, "token", "", "")
	fs.StringVar(&token, "t", "", "")

	var statePath string
	fs.StringVar(&statePath, "state", "", "")
	fs.StringVar(&statePath, "s", "", "")

	var empresa string
	fs.StringVar(&empresa, "empresa", "", "")

	var logPath string
	fs.StringVar(&logPath, "log", "", "")
	fs.StringVar(&logPath, "l", "", "")

	var loginURL, logoutURL string
	fs.StringVar(&loginURL, "login-url", client.DefaultLoginURL, "")
	fs.StringVar(&logoutURL, "logout-url", client.DefaultLogoutURL, "")

	var timeout time.Duration
	fs.DurationVar(&timeout, "timeout", client.DefaultHTTPTimeout, "")

	fs.Usage = func() {
		fmt.Fprint(os.Stdout, `Usage: controlstock [flags]

Flags:
  -u, -url <url>          control-stock base URL (default: http://127.0.0.1:8003/control-stock)
  -t, -token <token>      authentication token issued by the login portal
  -s, -state <path>       JSON file for local state (default: in memory)
  -empresa <code>         company code sent with every request
  -l, -log <path>         log file path (default: warnings and errors to stderr)
  -login-url <url>        login portal URL for expired sessions
  -logout-url <url>       logout URL
  -timeout <dur>          HTTP timeout (default: 15s)
  -h, -help               show this help and exit
`)
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(os.Stderr, "unexpected argument: %s\n", fs.Arg(0))
		fs.Usage()
		os.Exit(1)
	}

	// The terminal owns stdout, so logs go to the file or stderr only.
	if logPath != "" {
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: opening log file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		slog.SetDefault(slog.New(logging.NewHandler(f, f, slog.LevelInfo)))
	} else {
		slog.SetDefault(slog.New(logging.NewHandler(io.Discard, os.Stderr, slog.LevelWarn)))
	}

	storage, err := openStorage(statePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if empresa != "" {
		if err := storage.Set(client.KeyCompanyCode, empresa); err != nil {
			slog.Warn("storing company code", "error", err)
		}
	}

	api, err := client.NewAPIClient(baseURL, timeout, storage)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if token == "" {
		token, _ = storage.Get(client.KeyAuthToken)
	} else if err := storage.Set(client.KeyAuthToken, token); err != nil {
		slog.Warn("storing token", "error", err)
	}
	if token != "" {
		api.SetCookie(client.KeyAuthToken, token)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	term := client.NewTerminal(os.Stdin, os.Stdout)
	presenter := &client.AlertPresenter{Toaster: term, Modals: term, Prompter: term}
	guard := &client.SessionGuard{Storage: storage, Presenter: presenter, Navigator: term, DefaultLoginURL: loginURL}

	if !openPage(ctx, api, guard) {
		os.Exit(1)
	}

	wf := &client.Workflow{
		API:       api,
		Tokens:    client.TokenResolver{Cookies: api, Storage: storage},
		Presenter: presenter,
		Prompter:  term,
		Entry:     term,
		List:      term,
		Guard:     guard,
		Storage:   storage,
		Navigator: term,
		LogoutURL: logoutURL,
	}
	defer wf.Close()

	if err := storage.Set(client.KeySessionActive, "true"); err != nil {
		slog.Warn("setting session flag", "error", err)
	}
	if err := wf.Refresh(ctx); err != nil {
		slog.Warn("initial refresh", "error", err)
	}
	fmt.Print(help)

	run(ctx, wf, term)
}

func openStorage(path string) (client.Storage, error) {
	if path == "" {
		return client.NewMemoryStorage(nil), nil
	}
	return client.OpenFileStorage(path)
}

// openPage loads the page to obtain the CSRF cookie and token. Anything but
// 200 means the server sent the operator back to the login portal.
func openPage(ctx context.Context, api *client.APIClient, guard *client.SessionGuard) bool {
	resp, err := api.LoadPage(ctx)
	if err != nil {
		slog.Error("loading page", "error", err)
		fmt.Fprintln(os.Stderr, client.MsgCommunication)
		return false
	}
	if resp.Status == http.StatusOK {
		return true
	}

	st := guard.Inspect(resp.Status, resp.Body)
	st.Expired = true
	if resp.Location != "" {
		st.RedirectURL = resp.Location
	}
	if err := guard.Handle(st); err != nil {
		slog.Error("presenting session expiry", "error", err)
	}
	return false
}

func run(ctx context.Context, wf *client.Workflow, term *client.Terminal) {
	for ctx.Err() == nil && wf.State() != client.Expired {
		line, ok := term.ReadLine("> ")
		if !ok {
			return
		}
		switch line {
		case "":
		case "h", "?":
			fmt.Print(help)
		case "q":
			return
		case "salir":
			if wf.Logout() {
				return
			}
		case "r":
			if !term.RefreshEnabled() {
				continue
			}
			if err := wf.Refresh(ctx); err != nil {
				slog.Warn("refresh", "error", err)
			}
		default:
			n, err := strconv.Atoi(line)
			if err != nil || !term.Pick(n) {
				fmt.Println("Opción inválida")
				continue
			}
			enterQuantity(ctx, wf, term)
		}
	}
}

// enterQuantity asks for the counted quantity until it is submitted, the
// operator cancels, or the session expires.
func enterQuantity(ctx context.Context, wf *client.Workflow, term *client.Terminal) {
	for {
		qty, ok := term.ReadLine("Cantidad (c para cancelar): ")
		if !ok || qty == "c" {
			wf.Dismiss()
			return
		}
		term.SetInput(qty)

		out, err := wf.Confirm(ctx)
		var verr *client.ValidationError
		switch {
		case errors.As(err, &verr):
			continue
		case err != nil:
			return
		}
		switch out.Kind {
		case client.OutcomeRejected, client.OutcomeServerError:
			continue
		case client.OutcomeDeclined:
			wf.Dismiss()
		}
		return
	}
}
