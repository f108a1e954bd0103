package models

import "time"

// EventType identifies an event on the wire.
type EventType string

const (
	EventStepBegin         EventType = "step.begin"
	EventStepEnd           EventType = "step.end"
	EventStepInterrupted   EventType = "step.interrupted"
	EventContentDelta      EventType = "content.delta"
	EventToolCallAnnounce  EventType = "tool.announce"
	EventToolResult        EventType = "tool.result"
	EventApprovalRequested EventType = "approval.requested"
	EventCompactionBegin   EventType = "compaction.begin"
	EventCompactionEnd     EventType = "compaction.end"
	EventTokenUsage        EventType = "token.usage"
	EventDone              EventType = "done"
	EventSubscriberLagged  EventType = "subscriber.lagged"
)

// DeltaKind distinguishes visible output from reasoning traces.
type DeltaKind string

const (
	DeltaNormal    DeltaKind = "normal"
	DeltaReasoning DeltaKind = "reasoning"
)

// DoneCause explains why a run terminated.
type DoneCause string

const (
	DoneNatural    DoneCause = "natural"
	DoneMaxSteps   DoneCause = "max_steps"
	DoneCancelled  DoneCause = "cancelled"
	DoneFatalError DoneCause = "fatal_error"
)

// ApprovalReply is a subscriber's answer to an approval prompt.
type ApprovalReply string

const (
	ReplyApprove        ApprovalReply = "approve"
	ReplyApproveSession ApprovalReply = "approve_session"
	ReplyReject         ApprovalReply = "reject"
)

// DeltaPayload carries one streamed text fragment.
type DeltaPayload struct {
	Text string    `json:"text"`
	Kind DeltaKind `json:"kind"`
}

// ToolPayload carries tool lifecycle data. Call is set on announce events;
// the result fields are set on result events.
type ToolPayload struct {
	Call       ToolCall `json:"call,omitempty"`
	ToolCallID string   `json:"tool_call_id,omitempty"`
	OK         bool     `json:"ok,omitempty"`
	Preview    string   `json:"preview,omitempty"`
	Message    string   `json:"message,omitempty"`
}

// ApprovalPayload carries a privileged-action prompt. Reply is a one-shot
// channel: the gate blocks until a subscriber writes exactly one reply.
type ApprovalPayload struct {
	ToolCallID  string             `json:"tool_call_id"`
	Action      string             `json:"action"`
	Description string             `json:"description"`
	Reply       chan ApprovalReply `json:"-"`
}

// DonePayload carries the termination cause and an optional reason.
type DonePayload struct {
	Cause  DoneCause `json:"cause"`
	Reason string    `json:"reason,omitempty"`
}

// Event is one entry on the session wire. Exactly one payload pointer is
// set, matching Type. Sequence is stamped by the bus and is monotonic per
// session; Step counts from 1.
type Event struct {
	Type     EventType        `json:"type"`
	Time     time.Time        `json:"time"`
	Sequence uint64           `json:"sequence"`
	Step     int              `json:"step,omitempty"`
	Delta    *DeltaPayload    `json:"delta,omitempty"`
	Tool     *ToolPayload     `json:"tool,omitempty"`
	Approval *ApprovalPayload `json:"approval,omitempty"`
	Usage    *Usage           `json:"usage,omitempty"`
	Done     *DonePayload     `json:"done,omitempty"`
	Dropped  int              `json:"dropped,omitempty"`
}
