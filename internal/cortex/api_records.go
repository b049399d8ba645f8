package cortex

import (
	"context"
	"encoding/json"
)

// RecordRequest drives createRecord and updateRecord. Empty optional fields
// are omitted.
type RecordRequest struct {
	Token        string
	Session      string
	Title        string
	Description  string
	SubjectName  string
	Tags         []string
	ExperimentID int
}

func (r RecordRequest) params() map[string]any {
	p := map[string]any{"cortexToken": r.Token, "session": r.Session, "title": r.Title}
	if r.Description != "" {
		p["description"] = r.Description
	}
	if r.SubjectName != "" {
		p["subjectName"] = r.SubjectName
	}
	if len(r.Tags) > 0 {
		p["tags"] = r.Tags
	}
	return p
}

func (c *Client) CreateRecord(ctx context.Context, req RecordRequest) (json.RawMessage, error) {
	p := req.params()
	if req.ExperimentID > 0 {
		p["experimentId"] = req.ExperimentID
	}
	return c.Call(ctx, IDCreateRecord, "createRecord", p)
}

func (c *Client) StopRecord(ctx context.Context, token, session string) (json.RawMessage, error) {
	return c.Call(ctx, IDStopRecord, "stopRecord", map[string]any{"cortexToken": token, "session": session})
}

func (c *Client) UpdateRecord(ctx context.Context, req RecordRequest) (json.RawMessage, error) {
	return c.Call(ctx, IDUpdateRecord, "updateRecord", req.params())
}

// MarkerRequest drives injectMarker. Time is milliseconds since the epoch.
type MarkerRequest struct {
	Token   string
	Session string
	Time    int64
	Value   any
	Label   string
	Port    string
}

func (c *Client) InjectMarker(ctx context.Context, req MarkerRequest) (json.RawMessage, error) {
	p := map[string]any{
		"cortexToken": req.Token,
		"session":     req.Session,
		"time":        req.Time,
		"value":       req.Value,
		"label":       req.Label,
	}
	if req.Port != "" {
		p["port"] = req.Port
	}
	return c.Call(ctx, IDInjectMarker, "injectMarker", p)
}

// Profile is one training profile.
type Profile struct {
	Name     string `json:"name"`
	UUID     string `json:"uuid"`
	ReadOnly bool   `json:"readOnly"`
}

// CurrentProfile is the result of getCurrentProfile. Name is nil when no
// profile is loaded.
type CurrentProfile struct {
	Name            *string `json:"name"`
	LoadedByThisApp bool    `json:"loadedByThisApp"`
}

// SetupProfileRequest drives setupProfile.
type SetupProfileRequest struct {
	Token          string
	Status         string
	Profile        string
	Headset        string
	NewProfileName string
}

// TrainingRequest drives training.
type TrainingRequest struct {
	Token     string
	Session   string
	Detection string
	Status    string
	Action    string
}

func (c *Client) QueryProfile(ctx context.Context, token string) ([]Profile, error) {
	return call[[]Profile](ctx, c, IDQueryProfile, "queryProfile", tokenParams(token))
}

func (c *Client) GetCurrentProfile(ctx context.Context, token, headset string) (CurrentProfile, error) {
	return call[CurrentProfile](ctx, c, IDGetCurrentProfile, "getCurrentProfile", map[string]any{
		"cortexToken": token,
		"headset":     headset,
	})
}

func (c *Client) SetupProfile(ctx context.Context, req SetupProfileRequest) (json.RawMessage, error) {
	p := map[string]any{"cortexToken": req.Token, "profile": req.Profile, "status": req.Status}
	if req.Headset != "" {
		p["headset"] = req.Headset
	}
	if req.NewProfileName != "" {
		p["newProfileName"] = req.NewProfileName
	}
	return c.Call(ctx, IDSetupProfile, "setupProfile", p)
}

func (c *Client) LoadGuestProfile(ctx context.Context, token, headset string) (json.RawMessage, error) {
	return c.Call(ctx, IDLoadGuestProfile, "loadGuestProfile", map[string]any{"cortexToken": token, "headset": headset})
}

func (c *Client) GetDetectionInfo(ctx context.Context, detection string) (json.RawMessage, error) {
	return c.Call(ctx, IDGetDetectionInfo, "getDetectionInfo", map[string]any{"detection": detection})
}

func (c *Client) Training(ctx context.Context, req TrainingRequest) (json.RawMessage, error) {
	return c.Call(ctx, IDTraining, "training", map[string]any{
		"action":      req.Action,
		"cortexToken": req.Token,
		"detection":   req.Detection,
		"session":     req.Session,
		"status":      req.Status,
	})
}

// ConnectHeadset asks the service to pair with headset.
func (c *Client) ConnectHeadset(ctx context.Context, headset string) (json.RawMessage, error) {
	return c.ControlDevice(ctx, ControlDeviceRequest{Command: "connect", Headset: headset})
}

func (c *Client) DisconnectHeadset(ctx context.Context, headset string) (json.RawMessage, error) {
	return c.ControlDevice(ctx, ControlDeviceRequest{Command: "disconnect", Headset: headset})
}

// RefreshHeadsets triggers a headset scan.
func (c *Client) RefreshHeadsets(ctx context.Context) (json.RawMessage, error) {
	return c.ControlDevice(ctx, ControlDeviceRequest{Command: "refresh"})
}

func (c *Client) LoadProfile(ctx context.Context, token, headset, profile string) (json.RawMessage, error) {
	return c.SetupProfile(ctx, SetupProfileRequest{Token: token, Status: "load", Profile: profile, Headset: headset})
}

// CurrentProfileID returns the loaded profile name, or "" when none is.
func (c *Client) CurrentProfileID(ctx context.Context, token, headset string) (string, error) {
	cp, err := c.GetCurrentProfile(ctx, token, headset)
	if err != nil {
		return "", err
	}
	if cp.Name == nil || *cp.Name == "null" {
		return "", nil
	}
	return *cp.Name, nil
}

// FirstHeadset returns the id of the first headset matching id (any headset
// when id is empty).
func (c *Client) FirstHeadset(ctx context.Context, id string) (string, error) {
	hs, err := c.QueryHeadsets(ctx, id)
	if err != nil {
		return "", err
	}
	if len(hs) == 0 {
		return "", ErrNoHeadset
	}
	return hs[0].ID, nil
}
