package chat

import (
	"encoding/json"
	"time"
)

// Protocol command codes observed on the CHZZK chat websocket.
const (
	cmdAuth            = 100
	cmdSend            = 3101
	cmdHeartbeat       = 10000
	cmdSessionAccepted = 10100
	cmdChatMessage     = 93101
)

const (
	protocolVersion = "2"
	serviceID       = "game"
	deviceTypePC    = 2001
)

// inboundFrame is the envelope every server frame arrives in. The body shape
// depends on cmd, so it stays raw until the classifier looks at it.
type inboundFrame struct {
	Cmd int             `json:"cmd"`
	Bdy json.RawMessage `json:"bdy"`
}

type authFrame struct {
	Ver   string   `json:"ver"`
	Cmd   int      `json:"cmd"`
	Svcid string   `json:"svcid"`
	Cid   string   `json:"cid"`
	Bdy   authBody `json:"bdy"`
	Tid   int      `json:"tid"`
}

type authBody struct {
	UID     string `json:"uid"`
	DevType int    `json:"devType"`
	AccTkn  string `json:"accTkn"`
	Auth    string `json:"auth"`
}

type heartbeatFrame struct {
	Ver string `json:"ver"`
	Cmd int    `json:"cmd"`
}

type sendFrame struct {
	Ver   string   `json:"ver"`
	Cmd   int      `json:"cmd"`
	Svcid string   `json:"svcid"`
	Cid   string   `json:"cid"`
	Sid   string   `json:"sid"`
	Retry bool     `json:"retry"`
	Bdy   sendBody `json:"bdy"`
	Tid   int      `json:"tid"`
}

type sendBody struct {
	Msg         string `json:"msg"`
	MsgTypeCode int    `json:"msgTypeCode"`
	Extras      string `json:"extras"`
	MsgTime     int64  `json:"msgTime"`
}

// sendExtras is serialized to a JSON string inside the send body, matching the
// platform's string-in-string envelope.
type sendExtras struct {
	ChatType           string `json:"chatType"`
	OSType             string `json:"osType"`
	StreamingChannelID string `json:"streamingChannelId"`
	Emojis             string `json:"emojis"`
}

func encodeAuthFrame(chatChannelID, uid, accessToken string) ([]byte, error) {
	return json.Marshal(authFrame{
		Ver:   protocolVersion,
		Cmd:   cmdAuth,
		Svcid: serviceID,
		Cid:   chatChannelID,
		Bdy: authBody{
			UID:     uid,
			DevType: deviceTypePC,
			AccTkn:  accessToken,
			Auth:    "SEND",
		},
		Tid: 1,
	})
}

func encodeHeartbeatFrame() ([]byte, error) {
	return json.Marshal(heartbeatFrame{Ver: protocolVersion, Cmd: cmdHeartbeat})
}

func encodeSendFrame(chatChannelID, sid, msg, streamingChannelID string, at time.Time) ([]byte, error) {
	extras, err := json.Marshal(sendExtras{
		ChatType:           "STREAMING",
		OSType:             "PC",
		StreamingChannelID: streamingChannelID,
		Emojis:             "",
	})
	if err != nil {
		return nil, err
	}
	return json.Marshal(sendFrame{
		Ver:   protocolVersion,
		Cmd:   cmdSend,
		Svcid: serviceID,
		Cid:   chatChannelID,
		Sid:   sid,
		Retry: false,
		Bdy: sendBody{
			Msg:         msg,
			MsgTypeCode: 1,
			Extras:      string(extras),
			MsgTime:     at.UnixMilli(),
		},
		Tid: 3,
	})
}
