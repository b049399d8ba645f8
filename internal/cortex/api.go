package cortex

import (
	"context"
	"encoding/json"
	"fmt"
)

// call issues method and decodes its result into T.
func call[T any](ctx context.Context, c *Client, id int, method string, params map[string]any) (T, error) {
	var out T
	raw, err := c.Call(ctx, id, method, params)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("cortex: decode %s result: %w", method, err)
	}
	return out, nil
}

// creds fills empty fields of in from the configured credentials.
func (c *Client) creds(in Credentials) Credentials {
	def := c.opts.Credentials
	if in.ClientID == "" {
		in.ClientID = def.ClientID
	}
	if in.ClientSecret == "" {
		in.ClientSecret = def.ClientSecret
	}
	if in.License == "" {
		in.License = def.License
	}
	return in
}

func tokenParams(token string) map[string]any {
	return map[string]any{"cortexToken": token}
}

// UserLogin is one entry of getUserLogin.
type UserLogin struct {
	Username           string `json:"username"`
	CurrentOSUsername  string `json:"currentOSUsername"`
	LastLoginTime      string `json:"lastLoginTime"`
	LoggedInOSUsername string `json:"loggedInOSUsername"`
	CurrentOSUID       string `json:"currentOSUId"`
	LoggedInOSUID      string `json:"loggedInOSUId"`
}

// AccessResult is returned by requestAccess and hasAccessRight.
type AccessResult struct {
	AccessGranted bool   `json:"accessGranted"`
	Message       string `json:"message"`
}

// AuthorizeResult carries the token scoping later calls.
type AuthorizeResult struct {
	CortexToken string `json:"cortexToken"`
	Warning     *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"warning,omitempty"`
}

// GetUserLogin lists the users logged into the service.
func (c *Client) GetUserLogin(ctx context.Context) ([]UserLogin, error) {
	return call[[]UserLogin](ctx, c, IDGetUserLogin, "getUserLogin", nil)
}

// RequestAccess asks the user to approve the application.
func (c *Client) RequestAccess(ctx context.Context, creds Credentials) (AccessResult, error) {
	creds = c.creds(creds)
	return call[AccessResult](ctx, c, IDRequestAccess, "requestAccess", map[string]any{
		"clientId":     creds.ClientID,
		"clientSecret": creds.ClientSecret,
	})
}

// HasAccessRight reports whether the application was approved.
func (c *Client) HasAccessRight(ctx context.Context, creds Credentials) (AccessResult, error) {
	creds = c.creds(creds)
	return call[AccessResult](ctx, c, IDHasAccessRight, "hasAccessRight", map[string]any{
		"clientId":     creds.ClientID,
		"clientSecret": creds.ClientSecret,
	})
}

// Authorize obtains a token. A zero debit is omitted.
func (c *Client) Authorize(ctx context.Context, creds Credentials, debit int) (AuthorizeResult, error) {
	creds = c.creds(creds)
	params := map[string]any{
		"clientId":     creds.ClientID,
		"clientSecret": creds.ClientSecret,
	}
	if creds.License != "" {
		params["license"] = creds.License
	}
	if debit > 0 {
		params["debit"] = debit
	}
	return call[AuthorizeResult](ctx, c, IDAuthorize, "authorize", params)
}

// GenerateNewToken refreshes token.
func (c *Client) GenerateNewToken(ctx context.Context, token string, creds Credentials) (AuthorizeResult, error) {
	creds = c.creds(creds)
	return call[AuthorizeResult](ctx, c, IDGenerateNewToken, "generateNewToken", map[string]any{
		"cortexToken":  token,
		"clientId":     creds.ClientID,
		"clientSecret": creds.ClientSecret,
	})
}

func (c *Client) GetUserInformation(ctx context.Context, token string) (json.RawMessage, error) {
	return c.Call(ctx, IDGetUserInformation, "getUserInformation", tokenParams(token))
}

func (c *Client) GetLicenseInfo(ctx context.Context, token string) (json.RawMessage, error) {
	return c.Call(ctx, IDGetLicenseInfo, "getLicenseInfo", tokenParams(token))
}

// Headset is one entry of queryHeadsets.
type Headset struct {
	ID              string   `json:"id"`
	Status          string   `json:"status"`
	ConnectedBy     string   `json:"connectedBy"`
	CustomName      string   `json:"customName"`
	FirmwareVersion string   `json:"firmware"`
	Sensors         []string `json:"sensors"`
}

// ControlDeviceRequest drives controlDevice. Empty fields are omitted.
type ControlDeviceRequest struct {
	Command        string
	Headset        string
	Mappings       map[string]string
	ConnectionType string
}

// QueryHeadsets lists headsets, optionally filtered by id.
func (c *Client) QueryHeadsets(ctx context.Context, id string) ([]Headset, error) {
	var params map[string]any
	if id != "" {
		params = map[string]any{"id": id}
	}
	return call[[]Headset](ctx, c, IDQueryHeadsets, "queryHeadsets", params)
}

func (c *Client) ControlDevice(ctx context.Context, req ControlDeviceRequest) (json.RawMessage, error) {
	params := map[string]any{"command": req.Command}
	if req.Headset != "" {
		params["headset"] = req.Headset
	}
	if len(req.Mappings) > 0 {
		params["mappings"] = req.Mappings
	}
	if req.ConnectionType != "" {
		params["connectionType"] = req.ConnectionType
	}
	return c.Call(ctx, IDControlDevice, "controlDevice", params)
}

func (c *Client) UpdateHeadset(ctx context.Context, token, headset string, setting map[string]any) (json.RawMessage, error) {
	return c.Call(ctx, IDUpdateHeadset, "updateHeadset", map[string]any{
		"cortexToken": token,
		"headsetId":   headset,
		"setting":     setting,
	})
}

func (c *Client) UpdateHeadsetCustomInfo(ctx context.Context, token, headset, headbandPosition string) (json.RawMessage, error) {
	return c.Call(ctx, IDUpdateHeadsetCustomInfo, "updateHeadsetCustomInfo", map[string]any{
		"cortexToken":      token,
		"headbandPosition": headbandPosition,
		"headsetId":        headset,
	})
}

// SessionInfo describes a server-side session.
type SessionInfo struct {
	ID      string          `json:"id"`
	Status  string          `json:"status"`
	Owner   string          `json:"owner"`
	AppID   string          `json:"appId"`
	Headset json.RawMessage `json:"headset,omitempty"`
	Streams []string        `json:"streams"`
}

// CreateSession opens a session; headset may be empty.
func (c *Client) CreateSession(ctx context.Context, token, status, headset string) (SessionInfo, error) {
	params := map[string]any{"cortexToken": token, "status": status}
	if headset != "" {
		params["headset"] = headset
	}
	return call[SessionInfo](ctx, c, IDCreateSession, "createSession", params)
}

func (c *Client) UpdateSession(ctx context.Context, token, session, status string) (SessionInfo, error) {
	return call[SessionInfo](ctx, c, IDUpdateSession, "updateSession", map[string]any{
		"cortexToken": token,
		"session":     session,
		"status":      status,
	})
}

func (c *Client) QuerySessions(ctx context.Context, token string) ([]SessionInfo, error) {
	return call[[]SessionInfo](ctx, c, IDQuerySessions, "querySessions", tokenParams(token))
}

// StreamInfo describes one subscribed stream and its column layout.
type StreamInfo struct {
	StreamName string            `json:"streamName"`
	Cols       []json.RawMessage `json:"cols"`
	SID        string            `json:"sid,omitempty"`
}

// ColumnNames returns the column labels. Nested column groups are labelled
// by their JSON text.
func (s StreamInfo) ColumnNames() []string {
	names := make([]string, len(s.Cols))
	for i, raw := range s.Cols {
		var name string
		if err := json.Unmarshal(raw, &name); err != nil {
			name = string(raw)
		}
		names[i] = name
	}
	return names
}

// StreamFailure is a stream the service refused.
type StreamFailure struct {
	StreamName string `json:"streamName"`
	Code       int    `json:"code"`
	Message    string `json:"message"`
}

// SubscribeResult lists the accepted and refused streams. The service
// answers either {"success":[...],"failure":[...]} or a bare array of
// accepted streams; both decode here.
type SubscribeResult struct {
	Success []StreamInfo    `json:"success"`
	Failure []StreamFailure `json:"failure"`
}

func (r *SubscribeResult) UnmarshalJSON(b []byte) error {
	var list []StreamInfo
	if err := json.Unmarshal(b, &list); err == nil {
		r.Success = list
		r.Failure = nil
		return nil
	}
	type plain SubscribeResult
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*r = SubscribeResult(p)
	return nil
}

func (c *Client) Subscribe(ctx context.Context, token, session string, streams []string) (SubscribeResult, error) {
	return call[SubscribeResult](ctx, c, IDSubscribe, "subscribe", streamParams(token, session, streams))
}

func (c *Client) Unsubscribe(ctx context.Context, token, session string, streams []string) (SubscribeResult, error) {
	return call[SubscribeResult](ctx, c, IDUnsubscribe, "unsubscribe", streamParams(token, session, streams))
}

func streamParams(token, session string, streams []string) map[string]any {
	return map[string]any{"cortexToken": token, "session": session, "streams": streams}
}
