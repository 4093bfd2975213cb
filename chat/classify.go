package chat

import (
	"encoding/json"
	"fmt"
)

// Event is the closed set of semantic events the classifier produces.
type Event interface{ event() }

// SessionAccepted carries the transport-assigned session id required on every
// subsequent send frame.
type SessionAccepted struct {
	SID string
}

// ChatMessage is one viewer message lifted out of a message batch frame.
type ChatMessage struct {
	Nickname           string
	UserID             string
	Text               string
	MsgTypeCode        int
	StreamingChannelID string
}

// Unknown is any frame whose command code the bot doesn't act on.
type Unknown struct {
	Cmd int
}

func (SessionAccepted) event() {}
func (ChatMessage) event()     {}
func (Unknown) event()         {}

// DecodeError marks a frame that could not be mapped to an event. The caller
// logs and discards it; the session continues.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode frame: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("decode frame: %s", e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Classify maps one raw inbound payload to a semantic event. It is pure: no
// I/O, no session state. Malformed input yields a DecodeError, never a panic.
func Classify(raw []byte) (Event, error) {
	var frame inboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, &DecodeError{Reason: "not a frame envelope", Err: err}
	}
	switch frame.Cmd {
	case cmdSessionAccepted:
		var bdy struct {
			SID string `json:"sid"`
		}
		if err := json.Unmarshal(frame.Bdy, &bdy); err != nil {
			return nil, &DecodeError{Reason: "session-accepted body", Err: err}
		}
		if bdy.SID == "" {
			return nil, &DecodeError{Reason: "session-accepted frame without sid"}
		}
		return SessionAccepted{SID: bdy.SID}, nil
	case cmdChatMessage:
		return classifyMessageBatch(frame.Bdy)
	default:
		return Unknown{Cmd: frame.Cmd}, nil
	}
}

func classifyMessageBatch(bdy json.RawMessage) (Event, error) {
	var batch []struct {
		Profile     string `json:"profile"`
		Extras      string `json:"extras"`
		Msg         string `json:"msg"`
		MsgTypeCode int    `json:"msgTypeCode"`
	}
	if err := json.Unmarshal(bdy, &batch); err != nil {
		return nil, &DecodeError{Reason: "message batch body", Err: err}
	}
	if len(batch) == 0 {
		return nil, &DecodeError{Reason: "empty message batch"}
	}
	// Only the first batch item is processed.
	item := batch[0]

	// profile and extras are JSON documents embedded as strings.
	var profile struct {
		Nickname   string `json:"nickname"`
		UserIDHash string `json:"userIdHash"`
	}
	if err := json.Unmarshal([]byte(item.Profile), &profile); err != nil {
		return nil, &DecodeError{Reason: "message profile", Err: err}
	}
	var extras struct {
		StreamingChannelID string `json:"streamingChannelId"`
	}
	if err := json.Unmarshal([]byte(item.Extras), &extras); err != nil {
		return nil, &DecodeError{Reason: "message extras", Err: err}
	}

	return ChatMessage{
		Nickname:           profile.Nickname,
		UserID:             profile.UserIDHash,
		Text:               item.Msg,
		MsgTypeCode:        item.MsgTypeCode,
		StreamingChannelID: extras.StreamingChannelID,
	}, nil
}
