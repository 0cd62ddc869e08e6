package api

import "github.com/lifelongcx/voiceagent/domain/entities"

// ErrorResponse is the standard error body for the REST API.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// TranscribeResponse is the body for POST /stt/transcribe.
type TranscribeResponse struct {
	Text             string  `json:"text"`
	UploadTimeMs     int64   `json:"upload_time_ms"`
	ProcessingTimeMs int64   `json:"processing_time_ms"`
	AudioDuration    float64 `json:"audio_duration,omitempty"`
}

// ReplyResponse is the body for POST /agent/reply.
type ReplyResponse struct {
	UserText   string `json:"user_text"`
	AgentReply string `json:"agent_reply"`
}

// TokenRequest is the body for POST /api/v1/auth/token.
type TokenRequest struct {
	OperatorID string `json:"operator_id"`
	AccessKey  string `json:"access_key"`
}

// TokenResponse is the body returned on successful token issuance.
type TokenResponse struct {
	Token string `json:"token"`
}

// FeedbackListResponse is the body for GET /api/v1/feedback.
type FeedbackListResponse struct {
	Records []*entities.FeedbackRecord `json:"records"`
}
