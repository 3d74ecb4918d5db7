package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	// game host -> server
	TypeHello = "HELLO"
	TypeMove  = "MOVE"
	TypeHit   = "HIT"
	TypeDied  = "DIED"
	TypeCmd   = "CMD"
	TypeUse   = "USE"
	TypeLeave = "LEAVE"

	// server -> game host
	TypeWelcome = "WELCOME"
	TypeResult  = "RESULT"
	TypeNotice  = "NOTICE"
	TypePunish  = "PUNISH"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
