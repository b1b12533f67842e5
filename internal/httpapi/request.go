package httpapi

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/AmityCo/answercore/internal/answer"
	"github.com/AmityCo/answercore/pkg/types"
)

// maxRequestBody bounds the answer request body. The dominant contributor is
// the base64 audio of a single utterance, so 16 MiB is generous.
const maxRequestBody = 16 << 20

// historyTurn is one chat turn on the wire.
type historyTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// answerRequest is the JSON body of POST /api/v1/answer-sse.
type answerRequest struct {
	Transcript string `json:"transcript"`
	Language   string `json:"language"`
	OrgID      string `json:"org_id"`
	ConfigID   string `json:"config_id"`

	// Audio is the base64-encoded utterance, when the caller has one.
	Audio string `json:"audio,omitempty"`

	ChatHistory []historyTurn `json:"chat_history,omitempty"`

	// Keywords is a pointer so that an explicit empty list is distinguishable
	// from absence; presence skips validation.
	Keywords *[]string `json:"keywords,omitempty"`

	TranscriptConfidence float64 `json:"transcript_confidence,omitempty"`
	GenerateAnswer       *bool   `json:"generate_answer,omitempty"`
}

// validate collects every problem with the request rather than stopping at
// the first, so callers see the full repair list in one round trip.
func (r answerRequest) validate() error {
	var errs []error
	if r.Transcript == "" {
		errs = append(errs, errors.New("transcript is required"))
	}
	if r.OrgID == "" {
		errs = append(errs, errors.New("org_id is required"))
	}
	if r.ConfigID == "" {
		errs = append(errs, errors.New("config_id is required"))
	}
	if r.Language == "" {
		errs = append(errs, errors.New("language is required"))
	}
	for i, turn := range r.ChatHistory {
		if turn.Role != types.RoleUser && turn.Role != types.RoleAssistant {
			errs = append(errs, fmt.Errorf("chat_history[%d]: role must be %q or %q", i, types.RoleUser, types.RoleAssistant))
		}
		if turn.Content == "" {
			errs = append(errs, fmt.Errorf("chat_history[%d]: content is required", i))
		}
	}
	if r.Audio != "" {
		if _, err := base64.StdEncoding.DecodeString(r.Audio); err != nil {
			errs = append(errs, errors.New("audio is not valid base64"))
		}
	}
	return errors.Join(errs...)
}

// toPipeline converts the wire request into the orchestrator's form. Call
// only after validate has passed.
func (r answerRequest) toPipeline() answer.Request {
	req := answer.Request{
		Transcript:           r.Transcript,
		Language:             r.Language,
		OrgID:                r.OrgID,
		ConfigID:             r.ConfigID,
		TranscriptConfidence: r.TranscriptConfidence,
		GenerateAnswer:       r.GenerateAnswer,
	}
	if r.Audio != "" {
		req.Audio, _ = base64.StdEncoding.DecodeString(r.Audio)
	}
	if r.Keywords != nil {
		kw := make([]string, len(*r.Keywords))
		copy(kw, *r.Keywords)
		req.Keywords = kw
	}
	for _, turn := range r.ChatHistory {
		req.ChatHistory = append(req.ChatHistory, types.Message{
			Role:    turn.Role,
			Content: turn.Content,
		})
	}
	return req
}

// quickReplyRequest is the JSON body of POST /api/v1/quickreply.
type quickReplyRequest struct {
	Transcript string `json:"transcript"`
	Language   string `json:"language"`
	OrgID      string `json:"org_id"`
	ConfigID   string `json:"config_id"`
}

func (r quickReplyRequest) validate() error {
	var errs []error
	if r.Transcript == "" {
		errs = append(errs, errors.New("transcript is required"))
	}
	if r.OrgID == "" {
		errs = append(errs, errors.New("org_id is required"))
	}
	if r.ConfigID == "" {
		errs = append(errs, errors.New("config_id is required"))
	}
	return errors.Join(errs...)
}
