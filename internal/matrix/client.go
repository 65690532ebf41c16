package matrix

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/matrix-org/gomatrix"
	"github.com/tidwall/gjson"

	"github.com/shawkym/room-upgrader/pkg/log"
)

const (
	clientPrefix   = "/_matrix/client/v3"
	defaultTimeout = 30 * time.Second
)

// RequestObserver is told about every completed request.
// status is 0 when the request failed before a response arrived.
type RequestObserver func(call string, status int, elapsed time.Duration)

// Options configures a Client.
type Options struct {
	BaseURL     string
	AccessToken string
	Timeout     time.Duration
	UserAgent   string
	// HTTPClient overrides the transport; tests use it to intercept requests.
	HTTPClient *http.Client
	// RequestsPerSecond paces outgoing requests; 0 disables pacing.
	RequestsPerSecond float64
	Observer          RequestObserver
}

// Client provides the Matrix Client-Server API operations needed to upgrade rooms.
type Client struct {
	rest        *resty.Client
	baseURL     string
	accessToken string
	pacer       *pacer
	observer    RequestObserver
}

// NewClient creates a Matrix client with the provided options.
func NewClient(opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	baseURL := cleanBaseURL(opts.BaseURL)
	rest := resty.NewWithClient(hc).
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetLogger(restyLogger{}).
		SetDisableWarn(true).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if opts.UserAgent != "" {
		rest.SetHeader("User-Agent", opts.UserAgent)
	}
	if strings.HasPrefix(baseURL, "http://") && opts.AccessToken != "" {
		log.WithField("homeserver", baseURL).Warn("access token will be sent over plain HTTP")
	}

	return &Client{
		rest:        rest,
		baseURL:     baseURL,
		accessToken: opts.AccessToken,
		pacer:       newPacer(opts.RequestsPerSecond),
		observer:    opts.Observer,
	}
}

// BaseURL returns the normalized homeserver URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// WhoAmI returns the user ID owning the access token.
func (c *Client) WhoAmI(ctx context.Context) (string, error) {
	body, err := c.do(ctx, "whoami", http.MethodGet, clientPath("account", "whoami"), nil, true)
	if err != nil {
		return "", err
	}
	var resp whoAmIResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("failed to parse whoami response: %w", err)
	}
	if resp.UserID == "" {
		return "", fmt.Errorf("whoami response missing user_id")
	}
	return resp.UserID, nil
}

// Versions returns the Client-Server API versions the homeserver supports.
// The request is sent without credentials.
func (c *Client) Versions(ctx context.Context) ([]string, error) {
	body, err := c.do(ctx, "versions", http.MethodGet, "/_matrix/client/versions", nil, false)
	if err != nil {
		return nil, err
	}
	var resp versionsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse versions response: %w", err)
	}
	if len(resp.Versions) == 0 {
		return nil, fmt.Errorf("versions response missing versions")
	}
	return resp.Versions, nil
}

// Capabilities returns the room version capabilities of the homeserver.
func (c *Client) Capabilities(ctx context.Context) (*Capabilities, error) {
	body, err := c.do(ctx, "capabilities", http.MethodGet, clientPath("capabilities"), nil, true)
	if err != nil {
		return nil, err
	}
	var resp capabilitiesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse capabilities response: %w", err)
	}
	rv := resp.Capabilities.RoomVersions
	if rv == nil {
		return nil, fmt.Errorf("capabilities response missing m.room_versions")
	}
	return &Capabilities{
		DefaultRoomVersion:    rv.Default,
		AvailableRoomVersions: rv.Available,
	}, nil
}

// GetStateEvent returns the raw content of a state event.
// A missing event yields an error for which IsNotFound is true.
func (c *Client) GetStateEvent(ctx context.Context, roomID, eventType, stateKey string) (json.RawMessage, error) {
	body, err := c.do(ctx, "get_state", http.MethodGet, clientPath("rooms", roomID, "state", eventType, stateKey), nil, true)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("state event %s in %s is not valid JSON", eventType, roomID)
	}
	return json.RawMessage(body), nil
}

// HasStateEvent reports whether a state event exists. Any 2xx answer counts
// as present whatever its body; an error response counts as absent. Only a
// failed exchange is returned as an error.
func (c *Client) HasStateEvent(ctx context.Context, roomID, eventType, stateKey string) (bool, error) {
	_, err := c.do(ctx, "get_state", http.MethodGet, clientPath("rooms", roomID, "state", eventType, stateKey), nil, true)
	if err == nil {
		return true, nil
	}
	if StatusCode(err) == 0 {
		return false, err
	}
	return false, nil
}

// Members returns the member list of a room.
func (c *Client) Members(ctx context.Context, roomID string) ([]Member, error) {
	body, err := c.do(ctx, "members", http.MethodGet, clientPath("rooms", roomID, "members"), nil, true)
	if err != nil {
		return nil, err
	}
	return parseMembers(body)
}

func parseMembers(body []byte) ([]Member, error) {
	chunk := gjson.GetBytes(body, "chunk")
	if !chunk.IsArray() {
		return nil, fmt.Errorf("members response missing chunk array")
	}

	var members []Member
	var parseErr error
	chunk.ForEach(func(_, ev gjson.Result) bool {
		userID := ev.Get("state_key")
		membership := ev.Get("content.membership")
		if userID.Type != gjson.String || membership.Type != gjson.String {
			parseErr = fmt.Errorf("member event missing state_key or content.membership: %s", truncate(ev.Raw, 200))
			return false
		}
		members = append(members, Member{
			UserID:     userID.String(),
			Membership: membership.String(),
			Reason:     ev.Get("content.reason").String(),
		})
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return members, nil
}

// SendMessage sends an m.room.message event and returns its event ID.
func (c *Client) SendMessage(ctx context.Context, roomID string, content TextMessage) (string, error) {
	txnID := uuid.NewString()
	path := clientPath("rooms", roomID, "send", EventMessage, txnID)
	body, err := c.do(ctx, "send_message", http.MethodPut, path, content, true)
	if err != nil {
		return "", err
	}
	var resp gomatrix.RespSendEvent
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("failed to parse send response: %w", err)
	}
	if resp.EventID == "" {
		return "", fmt.Errorf("send response missing event_id")
	}
	return resp.EventID, nil
}

// CreateRoom creates a new room and returns its room ID.
func (c *Client) CreateRoom(ctx context.Context, req *CreateRoomRequest) (string, error) {
	body, err := c.do(ctx, "create_room", http.MethodPost, clientPath("createRoom"), req, true)
	if err != nil {
		return "", err
	}
	var resp gomatrix.RespCreateRoom
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("failed to parse createRoom response: %w", err)
	}
	if resp.RoomID == "" {
		return "", fmt.Errorf("createRoom response missing room_id")
	}
	return resp.RoomID, nil
}

// SendStateEvent puts a state event and returns its event ID, which may be empty.
func (c *Client) SendStateEvent(ctx context.Context, roomID, eventType, stateKey string, content interface{}) (string, error) {
	path := clientPath("rooms", roomID, "state", eventType, stateKey)
	body, err := c.do(ctx, "send_state", http.MethodPut, path, content, true)
	if err != nil {
		return "", err
	}
	return gjson.GetBytes(body, "event_id").String(), nil
}

// Ban bans userID from roomID.
func (c *Client) Ban(ctx context.Context, roomID, userID, reason string) error {
	_, err := c.do(ctx, "ban", http.MethodPost, clientPath("rooms", roomID, "ban"),
		membershipRequest{UserID: userID, Reason: reason}, true)
	return err
}

// Invite invites userID to roomID.
func (c *Client) Invite(ctx context.Context, roomID, userID, reason string) error {
	_, err := c.do(ctx, "invite", http.MethodPost, clientPath("rooms", roomID, "invite"),
		membershipRequest{UserID: userID, Reason: reason}, true)
	return err
}

func (c *Client) do(ctx context.Context, call, method, path string, body interface{}, auth bool) ([]byte, error) {
	if err := c.pacer.Wait(ctx, call); err != nil {
		return nil, err
	}

	req := c.rest.R().SetContext(ctx)
	if auth && c.accessToken != "" {
		req.SetAuthToken(c.accessToken)
	}
	if body != nil {
		req.SetBody(body)
	}

	start := time.Now()
	resp, err := req.Execute(method, path)
	elapsed := time.Since(start)
	if err != nil {
		c.observe(call, 0, elapsed)
		return nil, fmt.Errorf("%s request failed: %w", call, err)
	}
	c.observe(call, resp.StatusCode(), elapsed)

	log.WithFields(map[string]interface{}{
		"call":       call,
		"method":     method,
		"path":       path,
		"status":     resp.StatusCode(),
		"elapsed_ms": elapsed.Milliseconds(),
	}).Debug("matrix api call")

	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return nil, newError(call, resp.StatusCode(), resp.Body())
	}
	return resp.Body(), nil
}

func (c *Client) observe(call string, status int, elapsed time.Duration) {
	if c.observer != nil {
		c.observer(call, status, elapsed)
	}
}

// clientPath joins escaped segments under the v3 client prefix.
// An empty trailing segment keeps its slash, which addresses the empty state key.
func clientPath(segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	return clientPrefix + "/" + strings.Join(escaped, "/")
}

func cleanBaseURL(raw string) string {
	trimmed := strings.TrimRight(strings.TrimSpace(raw), "/")
	if idx := strings.Index(trimmed, "/_matrix"); idx != -1 {
		return trimmed[:idx]
	}
	return trimmed
}

// restyLogger routes resty's own diagnostics through the package logger.
type restyLogger struct{}

func (restyLogger) Errorf(format string, v ...interface{}) {
	log.WithField("component", "resty").Errorf(format, v...)
}

func (restyLogger) Warnf(format string, v ...interface{}) {
	log.WithField("component", "resty").Warnf(format, v...)
}

func (restyLogger) Debugf(format string, v ...interface{}) {
	log.WithField("component", "resty").Debugf(format, v...)
}
