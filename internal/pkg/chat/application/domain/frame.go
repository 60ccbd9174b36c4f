package chat

import "encoding/json"

// Frame types and actions exchanged over the conversation socket.
const (
	FrameTypeMessage  = "message"
	FrameTypeError    = "error"
	ActionSendMessage = "send_message"
)

// OutboundFrame is the only frame the client writes: a send request.
// ReplyTo is always encoded, as null when the message is not a reply.
type OutboundFrame struct {
	Action  string `json:"action"`
	Content string `json:"content"`
	ReplyTo *int64 `json:"reply_to"`
}

// NewSendFrame builds a send_message frame.
func NewSendFrame(content string, replyTo *int64) OutboundFrame {
	return OutboundFrame{Action: ActionSendMessage, Content: content, ReplyTo: replyTo}
}

// InboundFrame is a server push. Message holds a Message object for "message"
// frames and a string for "error" frames.
type InboundFrame struct {
	Type    string          `json:"type"`
	Message json.RawMessage `json:"message"`
}
