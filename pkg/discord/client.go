// Package discord is a minimal bot-token REST client for guild membership and roles.
package discord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/angelmondragon/lessongate-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/lessongate-backend/pkg/errors"
	"github.com/angelmondragon/lessongate-backend/pkg/logger"
	"github.com/angelmondragon/lessongate-backend/pkg/metrics"
)

const (
	breakerName    = "discord-api"
	defaultTimeout = 10 * time.Second
	maxBodyBytes   = 1 << 20
)

// Member is the subset of a guild member payload the service reads.
type Member struct {
	User struct {
		ID string `json:"id"`
	} `json:"user"`
	Roles []string `json:"roles"`
}

// Client talks to the Discord REST API through a circuit breaker.
type Client struct {
	http    *http.Client
	baseURL string
	token   string
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker[[]byte]
	metrics *metrics.BreakerMetrics
	logg    *logger.Logger
}

// NewClient validates the bot token and wires the breaker.
func NewClient(cfg config.DiscordConfig, breakerMetrics *metrics.BreakerMetrics, logg *logger.Logger) (*Client, error) {
	token, err := cfg.Token()
	if err != nil {
		return nil, err
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	if base == "" {
		return nil, pkgerrors.New(pkgerrors.CodeMisconfigured, "discord api base url is not configured")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logg == nil {
		logg = logger.Nop()
	}

	c := &Client{
		http:    &http.Client{},
		baseURL: base,
		token:   token,
		timeout: timeout,
		metrics: breakerMetrics,
		logg:    logg,
	}
	breakerMetrics.SetState(breakerName, stateToFloat(gobreaker.StateClosed))
	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 10 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		IsSuccessful: func(err error) bool {
			// a missing member or role is an answer, not an outage
			return err == nil || pkgerrors.Is(err, pkgerrors.CodeNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logg.Warn(c.logg.WithFields(context.Background(), map[string]any{
				"breaker": name, "from": from.String(), "to": to.String(),
			}), "discord.breaker.state_change")
			c.metrics.SetState(name, stateToFloat(to))
			c.metrics.Transition(name, from.String(), to.String())
		},
	})
	return c, nil
}

// WithHTTPClient swaps the transport, used by tests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.http = hc
	return c
}

// MemberRoles returns the role ids of userID in guildID. A user who is not a
// guild member yields a NotFound error.
func (c *Client) MemberRoles(ctx context.Context, guildID, userID string) ([]string, error) {
	body, err := c.execute(ctx, http.MethodGet, memberPath(guildID, userID))
	if err != nil {
		return nil, err
	}
	var member Member
	if err := json.Unmarshal(body, &member); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decoding discord member")
	}
	if member.Roles == nil {
		member.Roles = []string{}
	}
	return member.Roles, nil
}

// AddRole grants roleID to the guild member. Discord treats repeats as no-ops.
func (c *Client) AddRole(ctx context.Context, guildID, userID, roleID string) error {
	_, err := c.execute(ctx, http.MethodPut, memberPath(guildID, userID)+"/roles/"+url.PathEscape(roleID))
	return err
}

// RemoveRole revokes roleID from the guild member.
func (c *Client) RemoveRole(ctx context.Context, guildID, userID, roleID string) error {
	_, err := c.execute(ctx, http.MethodDelete, memberPath(guildID, userID)+"/roles/"+url.PathEscape(roleID))
	return err
}

func memberPath(guildID, userID string) string {
	return "/guilds/" + url.PathEscape(guildID) + "/members/" + url.PathEscape(userID)
}

func (c *Client) execute(ctx context.Context, method, path string) ([]byte, error) {
	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.do(ctx, method, path)
	})
	switch {
	case err == nil:
		c.metrics.Request(breakerName, "success")
		return body, nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		c.metrics.Request(breakerName, "rejected")
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "discord api unavailable")
	default:
		c.metrics.Request(breakerName, "failure")
		return nil, err
	}
}

func (c *Client) do(ctx context.Context, method, path string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "building discord request")
	}
	req.Header.Set("Authorization", "Bot "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if isTimeout(ctx, err) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeTimeout, err, fmt.Sprintf("discord %s timed out", method))
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "discord request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		if isTimeout(ctx, err) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeTimeout, err, "discord response timed out")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reading discord response")
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "discord member or role not found")
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, pkgerrors.New(pkgerrors.CodeMisconfigured, fmt.Sprintf("discord rejected bot credentials (%d)", resp.StatusCode))
	default:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("discord api returned %d", resp.StatusCode))
	}
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
