package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIClient(t *testing.T) {
	var got struct {
		csrf, empresa, deposito, contentType, origin string
		body                                 registerBody
		authCookie                           string
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /control-stock/{$}", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: CSRFCookie, Value: "sealed", Path: "/", HttpOnly: true})
		w.Header().Set(CSRFHeader, "csrf-123")
		w.Write([]byte("<html></html>"))
	})
	mux.HandleFunc("GET /control-stock/pendientes/", func(w http.ResponseWriter, r *http.Request) {
		got.deposito = r.Header.Get(WarehouseHeader)
		if c, err := r.Cookie(KeyAuthToken); err == nil {
			got.authCookie = c.Value
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"pendientes": []}`))
	})
	mux.HandleFunc("POST /control-stock/registrar/", func(w http.ResponseWriter, r *http.Request) {
		got.csrf = r.Header.Get(CSRFHeader)
		got.origin = r.Header.Get("Origin")
		got.empresa = r.Header.Get(CompanyHeader)
		got.contentType = r.Header.Get("Content-Type")
		json.NewDecoder(r.Body).Decode(&got.body)
		w.Write([]byte(`{"estado": true, "mensaje": "OK"}`))
	})
	mux.HandleFunc("GET /control-stock/expired/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "https://login.example/", http.StatusFound)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	storage := NewMemoryStorage(map[string]string{KeyCompanyCode: "EMP01", KeyWarehouse: "Central"})
	c, err := NewAPIClient(srv.URL+"/control-stock/", time.Second, storage)
	require.NoError(t, err)
	c.SetCookie(KeyAuthToken, "tok")

	ctx := context.Background()
	resp, err := c.LoadPage(ctx)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	v, ok := c.Cookie(CSRFCookie)
	require.True(t, ok)
	assert.Equal(t, "sealed", v)
	assert.Equal(t, "csrf-123", c.CSRFToken())

	resp, err = c.ListPending(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"pendientes": []}`, string(resp.Body))
	assert.Equal(t, "Central", got.deposito)
	assert.Equal(t, "tok", got.authCookie)

	resp, err = c.Register(ctx, "tok", "SOL001", "5")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "csrf-123", got.csrf)
	assert.Equal(t, srv.URL, got.origin)
	assert.Equal(t, "EMP01", got.empresa)
	assert.Equal(t, "application/json", got.contentType)
	assert.Equal(t, registerBody{Token: "tok", IDSolicitud: "SOL001", Cantidad: "5"}, got.body)

	// Redirects are reported, not followed.
	c.BaseURL = srv.URL + "/control-stock/expired"
	resp, err = c.LoadPage(ctx)
	require.NoError(t, err)
	assert.Equal(t, http.StatusFound, resp.Status)
	assert.Equal(t, "https://login.example/", resp.Location)
}

func TestAPIClientTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := NewAPIClient(url, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultHTTPTimeout, c.HTTP.Timeout)

	_, err = c.ListPending(context.Background())
	assert.Error(t, err)
}

func TestNewAPIClientRejectsRelative(t *testing.T) {
	_, err := NewAPIClient("/control-stock", time.Second, nil)
	assert.Error(t, err)
}
