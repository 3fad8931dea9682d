// Package qbt sets the listening port of a qBittorrent instance through its
// WebUI API (v2).
package qbt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/zpdzap/wsport/internal/port"
)

var (
	ErrAuthentication = errors.New("qBittorrent login failed")
	ErrUpdate         = errors.New("failed to update qBittorrent port")
)

const listenPortField = "listen_port"

// Client talks to one qBittorrent WebUI. It keeps the session cookie between
// calls and is not safe for concurrent use.
type Client struct {
	baseURL  string
	username string
	password string
	logger   *slog.Logger
	httpDo   func(req *http.Request) (*http.Response, error)
}

// NewClient builds a client for host and port. A host without a scheme is
// assumed to be plain http.
func NewClient(host, portStr, username, password string, logger *slog.Logger) (*Client, error) {
	base, err := BaseURL(host, portStr)
	if err != nil {
		return nil, err
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}
	hc := &http.Client{Jar: jar, Timeout: 15 * time.Second}
	return &Client{
		baseURL:  base,
		username: username,
		password: password,
		logger:   logger,
		httpDo:   hc.Do,
	}, nil
}

// BaseURL joins host and port into the WebUI root URL.
func BaseURL(host, portStr string) (string, error) {
	host = strings.TrimRight(strings.TrimSpace(host), "/")
	if host == "" {
		return "", fmt.Errorf("empty qBittorrent host")
	}
	if !strings.Contains(host, "://") {
		host = "http://" + host
	}
	u, err := url.Parse(host)
	if err != nil {
		return "", fmt.Errorf("parsing qBittorrent host: %w", err)
	}
	if portStr != "" && u.Port() == "" {
		u.Host = net.JoinHostPort(u.Hostname(), portStr)
	}
	return strings.TrimRight(u.String(), "/"), nil
}

// SetListeningPort logs in, rewrites listen_port in the preferences and
// leaves every other preference untouched. Single attempt, no retry.
func (c *Client) SetListeningPort(ctx context.Context, p port.Port) error {
	if !p.InRange() {
		return fmt.Errorf("%w: port %s out of range", ErrUpdate, p)
	}

	c.logger.Info("Authenticating with qBittorrent", "url", c.baseURL)
	if err := c.login(ctx); err != nil {
		c.logger.Error("qBittorrent login failed", "error", err)
		return err
	}
	defer c.logout(ctx)
	c.logger.Info("Successfully authenticated with qBittorrent")

	prefs, err := c.preferences(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUpdate, err)
	}

	raw, err := json.Marshal(p.Int())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUpdate, err)
	}
	prefs[listenPortField] = raw

	c.logger.Info("Updating qBittorrent port", "port", p.String())
	if err := c.setPreferences(ctx, prefs); err != nil {
		return fmt.Errorf("%w: %w", ErrUpdate, err)
	}
	c.logger.Info("Successfully set qBittorrent listening port", "port", p.String())
	return nil
}

func (c *Client) login(ctx context.Context) error {
	form := url.Values{"username": {c.username}, "password": {c.password}}
	resp, body, err := c.postForm(ctx, "/api/v2/auth/login", form)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %w", ErrAuthentication, err)
	}
	text := strings.TrimSpace(string(body))
	switch {
	case resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: IP banned for too many failed attempts", ErrAuthentication)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("%w: HTTP %d: %s", ErrAuthentication, resp.StatusCode, text)
	case text != "Ok.":
		return fmt.Errorf("%w: %s", ErrAuthentication, text)
	}
	return nil
}

func (c *Client) logout(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, _, err := c.postForm(ctx, "/api/v2/auth/logout", nil); err != nil {
		c.logger.Warn("qBittorrent logout failed", "error", err)
	}
}

// preferences returns the raw preference object so fields this client does
// not know about survive the round trip unchanged.
func (c *Client) preferences(ctx context.Context) (map[string]json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v2/app/preferences", nil)
	if err != nil {
		return nil, fmt.Errorf("building preferences request: %w", err)
	}
	c.decorate(req)
	resp, err := c.httpDo(req)
	if err != nil {
		return nil, fmt.Errorf("fetching preferences: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching preferences returned HTTP %d", resp.StatusCode)
	}
	var prefs map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&prefs); err != nil {
		return nil, fmt.Errorf("decoding preferences: %w", err)
	}
	if prefs == nil {
		return nil, fmt.Errorf("empty preferences")
	}
	return prefs, nil
}

func (c *Client) setPreferences(ctx context.Context, prefs map[string]json.RawMessage) error {
	data, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("encoding preferences: %w", err)
	}
	resp, body, err := c.postForm(ctx, "/api/v2/app/setPreferences", url.Values{"json": {string(data)}})
	if err != nil {
		return fmt.Errorf("setting preferences: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("setting preferences returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values) (*http.Response, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, nil, fmt.Errorf("building request for %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	c.decorate(req)

	resp, err := c.httpDo(req)
	if err != nil {
		return nil, nil, fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp, nil, fmt.Errorf("reading %s response: %w", path, err)
	}
	return resp, body, nil
}

// decorate sets the headers the WebUI's CSRF protection checks.
func (c *Client) decorate(req *http.Request) {
	req.Header.Set("Referer", c.baseURL)
	req.Header.Set("Origin", c.baseURL)
}
