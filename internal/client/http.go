package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"
)

// DefaultHTTPTimeout bounds every request to the front server.
const DefaultHTTPTimeout = 15 * time.Second

const maxBody = 1 << 20

// Response is a raw server response.
type Response struct {
	Status   int
	Body     []byte
	Location string
}

// API is the front server as seen by the workflow.
type API interface {
	ListPending(ctx context.Context) (*Response, error)
	Register(ctx context.Context, token Credential, id, quantity string) (*Response, error)
}

// APIClient talks to the control-stock endpoints under BaseURL, keeping
// cookies in a jar.
type APIClient struct {
	BaseURL string
	HTTP    *http.Client
	Storage Storage

	base *url.URL

	mu   sync.Mutex
	csrf string
}

// NewAPIClient creates a client for base, e.g. http://host/control-stock.
func NewAPIClient(base string, timeout time.Duration, storage Storage) (*APIClient, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", base)
	}
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	return &APIClient{
		BaseURL: u.String(),
		Storage: storage,
		base:    u,
		HTTP: &http.Client{
			Jar:     jar,
			Timeout: timeout,
			// Redirects point at the login portal; report them instead.
			CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		},
	}, nil
}

// SetCookie stores a cookie for the server, e.g. the authToken issued by the
// login portal.
func (c *APIClient) SetCookie(name, value string) {
	c.HTTP.Jar.SetCookies(c.cookieURL(), []*http.Cookie{{Name: name, Value: value, Path: "/"}})
}

// Cookie implements CookieSource over the jar.
func (c *APIClient) Cookie(name string) (string, bool) {
	for _, ck := range c.HTTP.Jar.Cookies(c.cookieURL()) {
		if ck.Name == name {
			v, err := url.QueryUnescape(ck.Value)
			if err != nil {
				v = ck.Value
			}
			return v, true
		}
	}
	return "", false
}

func (c *APIClient) cookieURL() *url.URL {
	return &url.URL{Scheme: c.base.Scheme, Host: c.base.Host, Path: "/"}
}

// CSRFToken returns the last X-CSRFToken the server exposed.
func (c *APIClient) CSRFToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.csrf
}

func (c *APIClient) origin() string {
	return c.base.Scheme + "://" + c.base.Host
}

// LoadPage fetches the page, which issues the csrftoken cookie and the
// matching X-CSRFToken header.
func (c *APIClient) LoadPage(ctx context.Context) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/", nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

// ListPending calls GET {base}/pendientes/.
func (c *APIClient) ListPending(ctx context.Context) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/pendientes/", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	c.tenantHeaders(req)
	return c.do(req)
}

type registerBody struct {
	Token       string `json:"token"`
	IDSolicitud string `json:"idSolicitud"`
	Cantidad    string `json:"cantidad"`
}

// Register calls POST {base}/registrar/.
func (c *APIClient) Register(ctx context.Context, token Credential, id, quantity string) (*Response, error) {
	body, err := json.Marshal(registerBody{Token: string(token), IDSolicitud: id, Cantidad: quantity})
	if err != nil {
		return nil, fmt.Errorf("encoding registration: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/registrar/", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Origin", c.origin())
	if csrf := c.CSRFToken(); csrf != "" {
		req.Header.Set(CSRFHeader, csrf)
	}
	c.tenantHeaders(req)
	return c.do(req)
}

func (c *APIClient) tenantHeaders(req *http.Request) {
	if c.Storage == nil {
		return
	}
	if v, ok := c.Storage.Get(KeyCompanyCode); ok && v != "" {
		req.Header.Set(CompanyHeader, v)
	}
	if v, ok := c.Storage.Get(KeyWarehouse); ok && v != "" {
		req.Header.Set(WarehouseHeader, v)
	}
}

func (c *APIClient) do(req *http.Request) (*Response, error) {
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if t := resp.Header.Get(CSRFHeader); t != "" {
		c.mu.Lock()
		c.csrf = t
		c.mu.Unlock()
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("reading %s response: %w", req.URL.Path, err)
	}
	return &Response{Status: resp.StatusCode, Body: body, Location: resp.Header.Get("Location")}, nil
}
