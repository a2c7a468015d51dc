package client

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/cormons/controlstock/internal/model"
)

// Terminal implements every surface on a line-oriented terminal.
type Terminal struct {
	Out io.Writer
	In  *bufio.Reader

	mu             sync.Mutex
	rows           []Row
	input          string
	busy           bool
	refreshEnabled bool
	navigated      string
}

// NewTerminal returns a Terminal over in and out.
func NewTerminal(in io.Reader, out io.Writer) *Terminal {
	return &Terminal{Out: out, In: bufio.NewReader(in), refreshEnabled: true}
}

func (t *Terminal) printf(format string, args ...any) {
	fmt.Fprintf(t.Out, format, args...)
}

// ReadLine prints prompt and reads one trimmed line. ok is false at EOF.
func (t *Terminal) ReadLine(prompt string) (string, bool) {
	if prompt != "" {
		t.printf("%s", prompt)
	}
	line, err := t.In.ReadString('\n')
	if err != nil && line == "" {
		return "", false
	}
	return strings.TrimSpace(line), true
}

// ShowToast implements Toaster.
func (t *Terminal) ShowToast(toast Toast) error {
	prefix := "[OK]"
	if toast.Severity == Info {
		prefix = "[i]"
	}
	t.printf("%s %s\n", prefix, toast.Message)
	return nil
}

// DismissToast is a no-op; printed toasts scroll away.
func (t *Terminal) DismissToast(int) {}

// ShowModal implements ModalSurface. It returns once the operator presses
// Enter, after running the action if there is one.
func (t *Terminal) ShowModal(m Modal) error {
	width := len([]rune(m.Message))
	if w := len([]rune(m.Title)); w > width {
		width = w
	}
	border := "+" + strings.Repeat("-", width+2) + "+"
	t.printf("%s\n| %-*s |\n| %-*s |\n%s\n", border, width, m.Title, width, m.Message, border)

	label := m.ActionLabel
	if label == "" {
		label = "Aceptar"
	}
	t.ReadLine(fmt.Sprintf("[%s] pulse Enter ", label))
	if m.OnAction != nil {
		m.OnAction()
	}
	return nil
}

// Alert implements Prompter.
func (t *Terminal) Alert(message string) {
	t.printf("%s\n", message)
}

// Confirm implements Prompter. An empty answer or EOF declines; unrecognized
// input asks again.
func (t *Terminal) Confirm(message string) bool {
	for {
		answer, ok := t.ReadLine(message + " [s/n] ")
		if !ok {
			return false
		}
		switch strings.ToLower(answer) {
		case "s", "si", "sí", "y", "yes":
			return true
		case "n", "no", "":
			return false
		}
	}
}

// ShowLoading implements ListSurface.
func (t *Terminal) ShowLoading(message string) {
	t.mu.Lock()
	t.rows = nil
	t.mu.Unlock()
	t.printf("%s\n", message)
}

// ShowMessage implements ListSurface. It clears the pickable rows.
func (t *Terminal) ShowMessage(message string) {
	t.mu.Lock()
	t.rows = nil
	t.mu.Unlock()
	t.printf("%s\n", message)
}

// ShowRows prints a numbered table. Rows are picked by number with Pick.
func (t *Terminal) ShowRows(rows []Row) {
	t.mu.Lock()
	t.rows = rows
	t.mu.Unlock()

	tw := tabwriter.NewWriter(t.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tCódigo\tDescripción\tFecha")
	for i, r := range rows {
		fmt.Fprintf(tw, "%d\t%s\n", i+1, strings.Join(r.Cells, "\t"))
	}
	tw.Flush()
}

// SetRefreshEnabled implements ListSurface.
func (t *Terminal) SetRefreshEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.refreshEnabled = enabled
}

// RefreshEnabled reports the refresh control state.
func (t *Terminal) RefreshEnabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.refreshEnabled
}

// Pick clicks row n (1-based).
func (t *Terminal) Pick(n int) bool {
	t.mu.Lock()
	if n < 1 || n > len(t.rows) {
		t.mu.Unlock()
		return false
	}
	r := t.rows[n-1]
	t.mu.Unlock()
	r.OnClick()
	return true
}

// Open implements EntrySurface.
func (t *Terminal) Open(req model.PendingRequest) {
	t.mu.Lock()
	t.input = ""
	t.mu.Unlock()
	t.printf("Código: %s\nDescripción: %s\n", req.Code, req.Description)
}

// Close implements EntrySurface.
func (t *Terminal) Close() {
	t.mu.Lock()
	t.input = ""
	t.mu.Unlock()
}

// SetInput stores what the operator typed as the quantity.
func (t *Terminal) SetInput(s string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.input = s
}

// Input implements EntrySurface.
func (t *Terminal) Input() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.input
}

// Focus is a no-op; the next prompt asks for the quantity again.
func (t *Terminal) Focus() {}

// SetBusy implements EntrySurface, printing label when busy.
func (t *Terminal) SetBusy(busy bool, label string) {
	t.mu.Lock()
	t.busy = busy
	t.mu.Unlock()
	if busy {
		t.printf("%s\n", label)
	}
}

// Busy reports whether the confirm control is disabled.
func (t *Terminal) Busy() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.busy
}

// Navigate prints url; a terminal cannot open it.
func (t *Terminal) Navigate(url string) {
	t.mu.Lock()
	t.navigated = url
	t.mu.Unlock()
	t.printf("Abrir: %s\n", url)
}

// Navigated returns the last url passed to Navigate.
func (t *Terminal) Navigated() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.navigated
}
