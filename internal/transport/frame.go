package transport

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ashureev/incident-intake/internal/domain"
	"github.com/ashureev/incident-intake/internal/intake"
)

// Frame types.
const (
	FrameText       = "text"
	FrameAttachment = "attachment"
	FrameCommand    = "command"
	FramePing       = "ping"
	FramePong       = "pong"
	FrameReply      = "reply"
	FrameError      = "error"
)

// ErrInvalidFrame is returned for frames that do not describe a turn.
var ErrInvalidFrame = errors.New("invalid frame")

// Frame is an inbound message. Data is base64 in JSON.
type Frame struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Command  string `json:"command,omitempty"`
	FileName string `json:"file_name,omitempty"`
	URL      string `json:"url,omitempty"`
	Data     []byte `json:"data,omitempty"`
}

type replyFrame struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type errorFrame struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// Turn converts f into a conversation turn. Text starting with "/" that
// names a known command is treated as that command.
func (f Frame) Turn(sessionID string, from domain.Identity) (intake.Turn, error) {
	turn := intake.Turn{SessionID: sessionID, From: from}

	switch f.Type {
	case FrameText:
		if strings.HasPrefix(strings.TrimSpace(f.Text), "/") {
			if c, ok := intake.ParseCommand(f.Text); ok {
				turn.Kind = intake.KindCommand
				turn.Command = c
				return turn, nil
			}
		}
		turn.Kind = intake.KindText
		turn.Text = f.Text
	case FrameCommand:
		c, ok := intake.ParseCommand(f.Command)
		if !ok {
			return turn, fmt.Errorf("%w: unknown command %q", ErrInvalidFrame, f.Command)
		}
		turn.Kind = intake.KindCommand
		turn.Command = c
	case FrameAttachment:
		if f.URL == "" && len(f.Data) == 0 {
			return turn, fmt.Errorf("%w: attachment without url or data", ErrInvalidFrame)
		}
		turn.Kind = intake.KindAttachment
		turn.Attachment = &domain.Attachment{FileName: f.FileName, URL: f.URL, Data: f.Data}
	default:
		return turn, fmt.Errorf("%w: unknown type %q", ErrInvalidFrame, f.Type)
	}
	return turn, nil
}
