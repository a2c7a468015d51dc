package client

import (
	"github.com/cormons/controlstock/internal/model"
)

// List messages.
const (
	MsgLoading   = "Cargando..."
	MsgNoPending = "No hay controles de stock pendientes"
)

// Row is one rendered pending request. Data carries every field so the
// record can be rebuilt from the row alone.
type Row struct {
	Cells   []string
	Data    map[string]string
	OnClick func()
}

// ListSurface displays the pending list.
type ListSurface interface {
	ShowLoading(message string)
	ShowMessage(message string)
	ShowRows(rows []Row)
	SetRefreshEnabled(enabled bool)
}

// ListRenderer turns pending requests into rows.
type ListRenderer struct {
	Surface  ListSurface
	OnSelect func(model.PendingRequest)
}

// Loading shows the loading placeholder.
func (r *ListRenderer) Loading() {
	r.Surface.ShowLoading(MsgLoading)
}

// Failure replaces the list with msg.
func (r *ListRenderer) Failure(msg string) {
	r.Surface.ShowMessage(msg)
}

// Render shows items in server order, or the empty message.
func (r *ListRenderer) Render(items []model.PendingRequest) {
	if len(items) == 0 {
		r.Surface.ShowMessage(MsgNoPending)
		return
	}

	rows := make([]Row, 0, len(items))
	for _, it := range items {
		data := it.DataAttributes()
		rows = append(rows, Row{
			Cells: []string{it.Code, it.Description, it.RequestedAt},
			Data:  data,
			OnClick: func() {
				if r.OnSelect != nil {
					r.OnSelect(model.PendingFromAttributes(data))
				}
			},
		})
	}
	r.Surface.ShowRows(rows)
}
