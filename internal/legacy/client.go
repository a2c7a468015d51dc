// Package legacy talks to the legacy stock backend: one JSON command per TCP
// connection, windows-1252 on the wire.
package legacy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"syscall"
	"time"

	"github.com/sony/gobreaker"
)

// Errors returned by Client.Send.
var (
	ErrDisabled    = errors.New("legacy backend disabled")
	ErrNoConfig    = errors.New("no legacy backend configured")
	ErrRefused     = errors.New("legacy backend refused the connection")
	ErrTimeout     = errors.New("timed out waiting for legacy backend")
	ErrEmptyReply  = errors.New("empty reply from legacy backend")
	ErrBadReply    = errors.New("invalid reply from legacy backend")
	ErrCircuitOpen = errors.New("legacy backend circuit open")
)

// Defaults for Config.
const (
	DefaultTimeout  = 10 * time.Second
	DefaultMaxReply = 64 << 10
	readChunk       = 2048
)

// Config configures a Client.
type Config struct {
	Enabled  bool
	Timeout  time.Duration
	MaxReply int
	Cipher   bool
	Breaker  BreakerConfig
	OnState  StateFunc
	Observe  func(command string, d time.Duration, err error)
}

// Client sends commands to legacy backends. Safe for concurrent use.
type Client struct {
	cfg      Config
	codec    Codec
	breakers *breakers
	dialer   net.Dialer
}

// NewClient creates a client. Zero timeout and reply size take defaults.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxReply <= 0 {
		cfg.MaxReply = DefaultMaxReply
	}
	return &Client{
		cfg:      cfg,
		codec:    Codec{Cipher: cfg.Cipher},
		breakers: newBreakers(cfg.Breaker, cfg.OnState),
	}
}

// BreakerStates reports the circuit state per backend address.
func (c *Client) BreakerStates() map[string]string {
	return c.breakers.states()
}

// Send delivers msg to addr and decodes the reply into out.
func (c *Client) Send(ctx context.Context, addr string, msg Message, out any) error {
	if !c.cfg.Enabled {
		slog.Warn("legacy backend is disabled", "command", msg.Command())
		return ErrDisabled
	}
	if addr == "" {
		return ErrNoConfig
	}

	start := time.Now()
	reply, err := c.breakers.get(addr).Execute(func() (any, error) {
		return c.roundTrip(ctx, addr, msg)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = fmt.Errorf("%w: %s", ErrCircuitOpen, addr)
	}
	if c.cfg.Observe != nil {
		c.cfg.Observe(msg.Command(), time.Since(start), err)
	}
	if err != nil {
		slog.Error("legacy command failed", "command", msg.Command(), "addr", addr, "error", err)
		return err
	}

	if err := json.Unmarshal(reply.([]byte), out); err != nil {
		return fmt.Errorf("%w: %v", ErrBadReply, err)
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, addr string, msg Message) ([]byte, error) {
	payload, err := c.codec.Encode(msg)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	slog.Debug("dialing legacy backend", "addr", addr, "command", msg.Command())
	conn, err := c.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, classify(err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return nil, fmt.Errorf("setting deadline: %w", err)
		}
	}

	if _, err := conn.Write(payload); err != nil {
		return nil, fmt.Errorf("sending command: %w", classify(err))
	}

	return c.readReply(conn)
}

// readReply reads until the decoded bytes form a complete JSON value, the
// peer closes, or MaxReply is reached.
func (c *Client) readReply(conn net.Conn) ([]byte, error) {
	var buf []byte
	chunk := make([]byte, readChunk)
	for len(buf) < c.cfg.MaxReply {
		n, err := conn.Read(chunk)
		buf = append(buf, chunk[:n]...)
		if n > 0 {
			if decoded, derr := c.codec.Decode(buf); derr == nil && json.Valid(decoded) {
				return decoded, nil
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, classify(err)
		}
	}

	if len(buf) == 0 {
		return nil, ErrEmptyReply
	}
	decoded, err := c.codec.Decode(buf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadReply, err)
	}
	if !json.Valid(decoded) {
		return nil, fmt.Errorf("%w: not JSON", ErrBadReply)
	}
	return decoded, nil
}

func classify(err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return fmt.Errorf("%w: %v", ErrRefused, err)
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}
