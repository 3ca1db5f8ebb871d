// Package client is a Go client for the chargeq HTTP API. It carries the
// version entity-tag through reads and conditional replaces so callers
// get compare-and-swap semantics without touching headers themselves.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrVersionConflict is returned when a conditional replace carried a
// stale version. Re-read the state and retry with the fresh version.
var ErrVersionConflict = errors.New("version conflict")

type Client struct {
	BaseURL string
	HTTP    *http.Client
	APIKey  string
}

type Option func(*Client)

func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.APIKey = strings.TrimSpace(key)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.HTTP = httpClient
		}
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type QueueEntry struct {
	Position int    `json:"position"`
	UserID   string `json:"user_id"`
}

type Spot struct {
	ID     string  `json:"id"`
	Type   string  `json:"type"`
	Label  string  `json:"label"`
	UserID *string `json:"user_id"`
}

type SpotAssignment struct {
	ID     string  `json:"id"`
	UserID *string `json:"user_id"`
}

// State is a snapshot of the shared queue and spot assignments. Version
// is the entity-tag the server issued for it.
type State struct {
	Queue     []QueueEntry `json:"queue"`
	Spots     []Spot       `json:"spots"`
	LastReset *time.Time   `json:"lastReset"`
	Version   int64        `json:"-"`
}

// StateChange is a full desired replacement submitted to ReplaceState.
type StateChange struct {
	Queue []QueueEntry     `json:"queue"`
	Spots []SpotAssignment `json:"spots"`
}

type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Pref string `json:"pref"`
}

type Settings struct {
	ResetTime string `json:"resetTime"`
}

type ResetResult struct {
	Reset   bool   `json:"reset"`
	Message string `json:"message"`
}

// State fetches the current snapshot together with its version tag.
func (c *Client) State(ctx context.Context) (State, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/state", nil, 0)
	if err != nil {
		return State{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return State{}, statusError("read state", resp)
	}
	return decodeState(resp)
}

// ReplaceState submits a full desired state. A version > 0 is sent as a
// conditional-write precondition; a stale version yields
// ErrVersionConflict and no server-side change. Version 0 skips the
// precondition.
func (c *Client) ReplaceState(ctx context.Context, change StateChange, version int64) (State, error) {
	resp, err := c.do(ctx, http.MethodPut, "/api/state", change, version)
	if err != nil {
		return State{}, err
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
		return decodeState(resp)
	case http.StatusPreconditionFailed:
		return State{}, ErrVersionConflict
	default:
		return State{}, statusError("replace state", resp)
	}
}

// TriggerReset asks the server to run the daily reset check.
func (c *Client) TriggerReset(ctx context.Context) (ResetResult, error) {
	resp, err := c.do(ctx, http.MethodPost, "/api/reset", nil, 0)
	if err != nil {
		return ResetResult{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ResetResult{}, statusError("trigger reset", resp)
	}
	var out ResetResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return ResetResult{}, err
	}
	return out, nil
}

func (c *Client) Settings(ctx context.Context) (Settings, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/settings", nil, 0)
	if err != nil {
		return Settings{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Settings{}, statusError("read settings", resp)
	}
	var out Settings
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Settings{}, err
	}
	return out, nil
}

func (c *Client) SetResetTime(ctx context.Context, resetTime string) error {
	resp, err := c.do(ctx, http.MethodPut, "/api/settings", Settings{ResetTime: resetTime}, 0)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return statusError("update settings", resp)
	}
	return nil
}

func (c *Client) CreateUser(ctx context.Context, name, pref string) (User, error) {
	resp, err := c.do(ctx, http.MethodPost, "/api/users", map[string]string{"name": name, "pref": pref}, 0)
	if err != nil {
		return User{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return User{}, statusError("create user", resp)
	}
	var out User
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return User{}, err
	}
	return out, nil
}

func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/users", nil, 0)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, statusError("list users", resp)
	}
	var out []User
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) DeleteUser(ctx context.Context, id string) error {
	resp, err := c.do(ctx, http.MethodDelete, "/api/users/"+url.PathEscape(id), nil, 0)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		return statusError("delete user", resp)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, version int64) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if version > 0 {
		req.Header.Set("If-Match", strconv.FormatInt(version, 10))
	}
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	return c.HTTP.Do(req)
}

func decodeState(resp *http.Response) (State, error) {
	var out State
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return State{}, err
	}
	if tag := resp.Header.Get("ETag"); tag != "" {
		v, err := strconv.ParseInt(strings.Trim(tag, `"`), 10, 64)
		if err != nil {
			return State{}, fmt.Errorf("parse etag %q: %w", tag, err)
		}
		out.Version = v
	}
	return out, nil
}

func statusError(op string, resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if body.Error != "" {
		return fmt.Errorf("%s: %s (status %d)", op, body.Error, resp.StatusCode)
	}
	return fmt.Errorf("%s failed: status %d", op, resp.StatusCode)
}
