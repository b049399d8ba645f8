package cortex

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// JSONRPCVersion is sent on every outbound request.
const JSONRPCVersion = "2.0"

// Request is an outbound JSON-RPC call. Empty params are omitted on the wire.
type Request struct {
	ID      int            `json:"id"`
	JSONRPC string         `json:"jsonrpc"`
	Method  string         `json:"method"`
	Params  map[string]any `json:"params,omitempty"`
}

// NewRequest builds a request for method under the fixed identifier id.
func NewRequest(id int, method string, params map[string]any) Request {
	return Request{ID: id, JSONRPC: JSONRPCVersion, Method: method, Params: params}
}

// Response is a decoded reply: exactly one of Result or Error is set.
type Response struct {
	ID     int
	Result json.RawMessage
	Error  *RemoteError
}

// Topic names the category of a pushed message or reply notification.
type Topic string

const (
	// TopicStart is published once the dispatch loop begins.
	TopicStart Topic = "start"
	// TopicClose is published once the dispatch loop has stopped.
	TopicClose Topic = "close"
)

// ReplyTopic is the topic under which listeners observe the reply to id.
func ReplyTopic(id int) Topic {
	return Topic("reply:" + strconv.Itoa(id))
}

// Event is what a listener receives: the topic payload plus stream metadata
// when the server sent it.
type Event struct {
	Topic Topic
	Data  json.RawMessage
	SID   string
	Time  float64
}

// FrameKind classifies an inbound frame.
type FrameKind int

const (
	FrameMalformed FrameKind = iota
	FrameResult
	FrameError
	FrameWarning
	FrameEvent
)

func (k FrameKind) String() string {
	switch k {
	case FrameResult:
		return "result"
	case FrameError:
		return "error"
	case FrameWarning:
		return "warning"
	case FrameEvent:
		return "event"
	default:
		return "malformed"
	}
}

// Frame is one decoded inbound message.
type Frame struct {
	Kind     FrameKind
	Response Response
	Warning  string
	Event    Event
}

// metadata keys carried alongside a stream payload; never a topic.
var eventMetaKeys = map[string]bool{"sid": true, "time": true}

// DecodeFrame classifies raw into exactly one FrameKind. Frames that fit none
// of them return a *MalformedFrameError.
func DecodeFrame(raw []byte) (Frame, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return Frame{}, &MalformedFrameError{Reason: "not a JSON object", Frame: raw, Err: err}
	}
	if obj == nil {
		return Frame{}, &MalformedFrameError{Reason: "null frame", Frame: raw}
	}

	if idRaw, ok := obj["id"]; ok {
		var id int
		if err := json.Unmarshal(idRaw, &id); err != nil {
			return Frame{}, &MalformedFrameError{Reason: "non-integer id", Frame: raw, Err: err}
		}
		result, hasResult := obj["result"]
		errRaw, hasError := obj["error"]
		switch {
		case hasResult && hasError:
			return Frame{}, &MalformedFrameError{Reason: "reply carries both result and error", Frame: raw}
		case hasResult:
			return Frame{Kind: FrameResult, Response: Response{ID: id, Result: result}}, nil
		case hasError:
			var re RemoteError
			if err := json.Unmarshal(errRaw, &re); err != nil {
				return Frame{}, &MalformedFrameError{Reason: "invalid error object", Frame: raw, Err: err}
			}
			return Frame{Kind: FrameError, Response: Response{ID: id, Error: &re}}, nil
		default:
			return Frame{}, &MalformedFrameError{Reason: "reply without result or error", Frame: raw}
		}
	}

	if w, ok := obj["warning"]; ok {
		var msg string
		if err := json.Unmarshal(w, &msg); err != nil {
			// structured warnings are logged verbatim
			msg = string(w)
		}
		return Frame{Kind: FrameWarning, Warning: msg}, nil
	}

	keys, err := objectKeys(raw)
	if err != nil {
		return Frame{}, &MalformedFrameError{Reason: "unreadable object", Frame: raw, Err: err}
	}
	ev := Event{}
	for _, k := range keys {
		if eventMetaKeys[k] {
			continue
		}
		ev.Topic = Topic(k)
		ev.Data = obj[k]
		break
	}
	if ev.Topic == "" {
		return Frame{}, &MalformedFrameError{Reason: "event without topic", Frame: raw}
	}
	if sid, ok := obj["sid"]; ok {
		_ = json.Unmarshal(sid, &ev.SID)
	}
	if ts, ok := obj["time"]; ok {
		_ = json.Unmarshal(ts, &ev.Time)
	}
	return Frame{Kind: FrameEvent, Event: ev}, nil
}

// objectKeys returns the top-level keys of a JSON object in document order.
func objectKeys(raw []byte) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, _ := tok.(string)
		keys = append(keys, key)
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, err
		}
	}
	return keys, nil
}
