package protocol

// HELLO (game host -> server): one per actor connection.
type HelloMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	ActorID         string     `json:"actor_id"`
	Name            string     `json:"name"`
	World           string     `json:"world"`
	Pos             [3]float64 `json:"pos"`
}

// WELCOME (server -> game host)
type WelcomeMsg struct {
	Type            string           `json:"type"`
	ProtocolVersion string           `json:"protocol_version"`
	ActorID         string           `json:"actor_id"`
	Name            string           `json:"name"`
	CombatTagMs     int64            `json:"combat_tag_ms"`
	Abilities       []AbilitySummary `json:"abilities,omitempty"`
}

type AbilitySummary struct {
	Key        string `json:"key"`
	CooldownMs int64  `json:"cooldown_ms"`
	Targeted   bool   `json:"targeted"`
	Hostile    bool   `json:"hostile"`
}

type MoveMsg struct {
	Type  string     `json:"type"`
	World string     `json:"world,omitempty"`
	Pos   [3]float64 `json:"pos"`
}

// HIT reports that this connection's actor is about to harm Victim. The
// server answers with a RESULT whose Verdict says whether the effect may land.
type HitMsg struct {
	Type   string `json:"type"`
	ID     string `json:"id,omitempty"`
	Victim string `json:"victim"`
}

type DiedMsg struct {
	Type string `json:"type"`
}

type CmdMsg struct {
	Type string   `json:"type"`
	ID   string   `json:"id"`
	Name string   `json:"name"`
	Args []string `json:"args,omitempty"`
}

type UseMsg struct {
	Type       string `json:"type"`
	ID         string `json:"id"`
	Capability string `json:"capability"`
	Target     string `json:"target,omitempty"`
}

// LEAVE announces a disconnect while keeping the socket open long enough to
// receive a PUNISH.
type LeaveMsg struct {
	Type string `json:"type"`
}

type ResultMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Ref             string `json:"ref,omitempty"`
	OK              bool   `json:"ok"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
	Verdict         string `json:"verdict,omitempty"`
	Data            any    `json:"data,omitempty"`
}

type NoticeMsg struct {
	Type string `json:"type"`
	Kind string `json:"kind"`
	Text string `json:"text"`
}

type PunishMsg struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}
