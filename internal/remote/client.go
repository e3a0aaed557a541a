// Package remote is the REST client for the prompt service: the relation
// directory, prompt create/snooze/delete and service discovery.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Outcome codes stored on prompts when a call does not yield an HTTP status.
const (
	CodeNetworkDown = 99
	CodeGeneral     = 18000
)

// DefaultBaseCampURL publishes the current service host.
const DefaultBaseCampURL = "https://www.coolftc.org/Prompt/link/promptme.json"

// ErrTransport wraps failures where no HTTP response was received.
var ErrTransport = errors.New("remote: transport failure")

// ErrDecode means the service answered but the body could not be read. The
// request reached the service, so it must not be retried as a transport
// failure.
var ErrDecode = errors.New("remote: unreadable response")

// ErrNoHost is returned when the base camp document names no host.
var ErrNoHost = errors.New("remote: base camp has no host")

// StatusError is a non-2xx reply from the service.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote: http %d", e.Code)
	}
	return fmt.Sprintf("remote: http %d: %s", e.Code, e.Message)
}

// Code maps an error from this package to the status stored on a prompt.
func Code(err error) int {
	var se *StatusError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &se):
		return se.Code
	case errors.Is(err, ErrTransport):
		return CodeNetworkDown
	default:
		return CodeGeneral
	}
}

// Config configures a Client.
type Config struct {
	BaseURL string
	Ticket  string
	AcctID  int64
	Timeout time.Duration
	Retries int
}

// Client talks to the prompt service on behalf of one account.
type Client struct {
	http   *resty.Client
	bare   *resty.Client
	acctID int64
	logger *zap.Logger
}

// New creates a client. The ticket is sent as-is in the Authorization
// header; the service does not use a scheme prefix.
func New(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("remote")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	hc := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.Retries).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetLogger(restyLogger{logger.Sugar()})
	if cfg.Ticket != "" {
		hc.SetHeader("Authorization", cfg.Ticket)
	}

	return &Client{
		http:   hc,
		bare:   resty.New().SetTimeout(cfg.Timeout).SetHeader("Accept", "application/json").SetLogger(restyLogger{logger.Sugar()}),
		acctID: cfg.AcctID,
		logger: logger,
	}
}

// restyLogger routes resty's own retry and error messages into zap.
type restyLogger struct {
	s *zap.SugaredLogger
}

var _ resty.Logger = restyLogger{}

func (l restyLogger) Errorf(format string, v ...any) { l.s.Error(line(format, v)) }
func (l restyLogger) Warnf(format string, v ...any)  { l.s.Warn(line(format, v)) }
func (l restyLogger) Debugf(format string, v ...any) { l.s.Debug(line(format, v)) }

func line(format string, v []any) string {
	return strings.TrimSpace(fmt.Sprintf(format, v...))
}

// SetBaseURL points the client at a newly discovered host.
func (c *Client) SetBaseURL(u string) {
	c.http.SetBaseURL(strings.TrimRight(u, "/"))
}

// BaseURL returns the host the client currently targets.
func (c *Client) BaseURL() string {
	return c.http.BaseURL
}

// Ping checks the service is reachable and returns its version.
func (c *Client) Ping(ctx context.Context) (string, error) {
	var out PingResponse
	if err := c.do(ctx, http.MethodGet, "/v1/status/ping", nil, &out); err != nil {
		return "", err
	}
	return out.Version, nil
}

// Friends fetches the account's relation lists.
func (c *Client) Friends(ctx context.Context) (*Invitations, error) {
	var out Invitations
	if err := c.do(ctx, http.MethodGet, c.userPath("/friend"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Invite asks someone to connect.
func (c *Client) Invite(ctx context.Context, req InviteRequest) error {
	return c.do(ctx, http.MethodPost, c.userPath("/friend"), req, nil)
}

// Unfriend drops a relation or withdraws/declines an invitation.
func (c *Client) Unfriend(ctx context.Context, friendID int64) error {
	return c.do(ctx, http.MethodDelete, c.userPath(fmt.Sprintf("/friend/%d", friendID)), nil, nil)
}

// CreatePrompt schedules a prompt and returns the server's id and time.
func (c *Client) CreatePrompt(ctx context.Context, req PromptRequest) (*PromptResponse, error) {
	var out PromptResponse
	if err := c.do(ctx, http.MethodPost, c.userPath("/prompt"), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SnoozePrompt reschedules a delivered prompt. The response id is the
// snooze id, distinct from the original prompt id.
func (c *Client) SnoozePrompt(ctx context.Context, req SnoozeRequest) (*PromptResponse, error) {
	var out PromptResponse
	if err := c.do(ctx, http.MethodPut, c.userPath("/prompt"), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeletePrompt cancels a prompt (or a snooze) on the server.
func (c *Client) DeletePrompt(ctx context.Context, noteID int64) error {
	return c.do(ctx, http.MethodDelete, c.userPath(fmt.Sprintf("/prompt/%d", noteID)), nil, nil)
}

// Discover reads the base camp document and returns the service host. The
// account ticket is not sent.
func (c *Client) Discover(ctx context.Context, baseCampURL string) (string, error) {
	var out BaseCamp
	if err := c.send(ctx, c.bare, http.MethodGet, baseCampURL, nil, &out); err != nil {
		return "", err
	}
	host := strings.TrimSpace(out.Host)
	if host == "" {
		return "", ErrNoHost
	}
	return host, nil
}

func (c *Client) userPath(suffix string) string {
	return fmt.Sprintf("/v1/user/%d%s", c.acctID, suffix)
}

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	return c.send(ctx, c.http, method, path, body, result)
}

func (c *Client) send(ctx context.Context, hc *resty.Client, method, path string, body, result any) error {
	reqID := uuid.NewString()
	req := hc.R().
		SetContext(ctx).
		SetHeader("X-Request-Id", reqID)
	if body != nil {
		req.SetBody(body)
	}
	if result != nil {
		req.SetResult(result)
	}

	resp, err := req.Execute(method, path)
	if err != nil && resp != nil && resp.StatusCode() > 0 {
		c.logger.Warn("response unreadable",
			zap.String("method", method),
			zap.String("path", path),
			zap.String("request_id", reqID),
			zap.Int("status_code", resp.StatusCode()),
			zap.Error(err),
		)
		if resp.IsError() {
			return &StatusError{Code: resp.StatusCode(), Message: strings.TrimSpace(resp.String())}
		}
		return fmt.Errorf("%w: %s %s: http %d: %v", ErrDecode, method, path, resp.StatusCode(), err)
	}
	if err != nil {
		c.logger.Warn("request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.String("request_id", reqID),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %s %s: %v", ErrTransport, method, path, err)
	}
	if resp.IsError() {
		c.logger.Warn("request rejected",
			zap.String("method", method),
			zap.String("path", path),
			zap.String("request_id", reqID),
			zap.Int("status_code", resp.StatusCode()),
		)
		return &StatusError{Code: resp.StatusCode(), Message: strings.TrimSpace(resp.String())}
	}

	c.logger.Debug("request ok",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status_code", resp.StatusCode()),
		zap.Duration("elapsed", resp.Time()),
	)
	return nil
}
