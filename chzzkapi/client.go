// Package chzzkapi contains minimal helpers to interact with the CHZZK
// live-status and game APIs using the two Naver session cookies. Responses are
// `{code, message, content}` envelopes whose content schema is versioned by the
// platform, so documents are handed back as gjson results rather than rigid
// structs; the session-critical fields get typed accessors.
package chzzkapi

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/tidwall/gjson"
)

const (
	defaultServiceBaseURL = "https://api.chzzk.naver.com"
	defaultGameBaseURL    = "https://comm-api.game.naver.com"
)

// SessionCookies are the two opaque Naver session cookies (NID_AUT / NID_SES).
// How they are obtained is outside this package; any source that can hand over
// the cookie values works.
type SessionCookies struct {
	Aut string
	Ses string
}

// CookieSource supplies session cookies, re-reading them when they rotate.
type CookieSource interface {
	Cookies(ctx context.Context) (SessionCookies, error)
}

// StaticCookies is a CookieSource for cookies that don't rotate within a run.
type StaticCookies SessionCookies

func (s StaticCookies) Cookies(context.Context) (SessionCookies, error) {
	return SessionCookies(s), nil
}

// FetchError marks a single endpoint fetch failure. Callers isolate it to the
// data that endpoint feeds instead of failing the whole operation.
type FetchError struct {
	Endpoint string
	Err      error
}

func (e *FetchError) Error() string { return fmt.Sprintf("fetch %s: %v", e.Endpoint, e.Err) }
func (e *FetchError) Unwrap() error { return e.Err }

// Client issues authenticated reads against the CHZZK endpoints.
type Client struct {
	Cookies    CookieSource
	HTTPClient *http.Client

	// Base URL overrides for tests; empty means production.
	ServiceBaseURL string
	GameBaseURL    string
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) serviceBase() string {
	if c.ServiceBaseURL != "" {
		return c.ServiceBaseURL
	}
	return defaultServiceBaseURL
}

func (c *Client) gameBase() string {
	if c.GameBaseURL != "" {
		return c.GameBaseURL
	}
	return defaultGameBaseURL
}

func (c *Client) get(ctx context.Context, endpoint, url string) (gjson.Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return gjson.Result{}, &FetchError{Endpoint: endpoint, Err: err}
	}
	if c.Cookies != nil {
		ck, err := c.Cookies.Cookies(ctx)
		if err != nil {
			return gjson.Result{}, &FetchError{Endpoint: endpoint, Err: err}
		}
		req.Header.Set("Cookie", fmt.Sprintf("NID_AUT=%s; NID_SES=%s;", ck.Aut, ck.Ses))
	}
	resp, err := c.http().Do(req)
	if err != nil {
		return gjson.Result{}, &FetchError{Endpoint: endpoint, Err: err}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, &FetchError{Endpoint: endpoint, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return gjson.Result{}, &FetchError{Endpoint: endpoint, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, &FetchError{Endpoint: endpoint, Err: fmt.Errorf("invalid json body")}
	}
	return gjson.ParseBytes(body), nil
}

// LiveDetail returns the live-detail document for a broadcast channel.
func (c *Client) LiveDetail(ctx context.Context, channelID string) (gjson.Result, error) {
	url := fmt.Sprintf("%s/service/v2/channels/%s/live-detail", c.serviceBase(), channelID)
	return c.get(ctx, "live-detail", url)
}

// LiveStatus returns the polling live-status document for a broadcast channel.
func (c *Client) LiveStatus(ctx context.Context, channelID string) (gjson.Result, error) {
	url := fmt.Sprintf("%s/polling/v2/channels/%s/live-status", c.serviceBase(), channelID)
	return c.get(ctx, "live-status", url)
}

// ProfileCard returns the profile-card document for a user within a chat.
// Passing the broadcast channel id as userID yields the channel's own card.
func (c *Client) ProfileCard(ctx context.Context, chatChannelID, userID string) (gjson.Result, error) {
	url := fmt.Sprintf("%s/nng_main/v1/chats/%s/users/%s/profile-card?chatType=STREAMING", c.gameBase(), chatChannelID, userID)
	return c.get(ctx, "profile-card", url)
}

// ChatChannelID resolves the chat-channel id for a broadcast channel. The id
// rotates between broadcasts, so it is re-resolved before every handshake.
func (c *Client) ChatChannelID(ctx context.Context, channelID string) (string, error) {
	doc, err := c.LiveDetail(ctx, channelID)
	if err != nil {
		return "", err
	}
	id := doc.Get("content.chatChannelId").String()
	if id == "" {
		return "", &FetchError{Endpoint: "live-detail", Err: fmt.Errorf("no chatChannelId in response")}
	}
	return id, nil
}

// AccessToken fetches the chat access token used in the auth frame.
func (c *Client) AccessToken(ctx context.Context, chatChannelID string) (string, error) {
	url := fmt.Sprintf("%s/nng_main/v1/chats/access-token?channelId=%s&chatType=STREAMING", c.gameBase(), chatChannelID)
	doc, err := c.get(ctx, "access-token", url)
	if err != nil {
		return "", err
	}
	tok := doc.Get("content.accessToken").String()
	if tok == "" {
		return "", &FetchError{Endpoint: "access-token", Err: fmt.Errorf("no accessToken in response")}
	}
	return tok, nil
}

// UserStatus is the authenticated user's identity as reported by the platform.
type UserStatus struct {
	UserIDHash string
	Nickname   string
}

// GetUserStatus returns the identity behind the session cookies. An empty
// userIdHash means the cookies are missing or expired.
func (c *Client) GetUserStatus(ctx context.Context) (UserStatus, error) {
	url := fmt.Sprintf("%s/nng_main/v1/user/getUserStatus", c.gameBase())
	doc, err := c.get(ctx, "user-status", url)
	if err != nil {
		return UserStatus{}, err
	}
	us := UserStatus{
		UserIDHash: doc.Get("content.userIdHash").String(),
		Nickname:   doc.Get("content.nickname").String(),
	}
	if us.UserIDHash == "" {
		return UserStatus{}, &FetchError{Endpoint: "user-status", Err: fmt.Errorf("no userIdHash in response; cookies expired?")}
	}
	return us, nil
}
