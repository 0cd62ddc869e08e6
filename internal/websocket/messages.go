package websocket

import "encoding/json"

// CloseProtocolViolation is sent when the caller's first frame is not
// binary audio. Clients can distinguish it from normal closure.
const CloseProtocolViolation = 4000

// TranscriptFrame is the text metadata for one turn. It is always
// delivered before that turn's audio starts streaming so clients can
// render the transcript ahead of playback.
type TranscriptFrame struct {
	UserText   string `json:"user_text"`
	AgentReply string `json:"agent_reply"`
}

// ErrorFrame is the structured notice for a recoverable failure, and the
// best-effort final frame before a fatal close.
type ErrorFrame struct {
	Error string `json:"error"`
}

func marshalTranscript(userText, agentReply string) []byte {
	payload, _ := json.Marshal(TranscriptFrame{UserText: userText, AgentReply: agentReply})
	return payload
}

func marshalError(message string) []byte {
	payload, _ := json.Marshal(ErrorFrame{Error: message})
	return payload
}
