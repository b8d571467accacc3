package intake

import "github.com/ashureev/incident-intake/internal/domain"

// Kind classifies an inbound turn.
type Kind string

const (
	KindText       Kind = "text"
	KindAttachment Kind = "attachment"
	KindCommand    Kind = "command"
)

// Command is a control signal sent by the remote party.
type Command string

const (
	// CommandStart greets the user and registers them.
	CommandStart Command = "start"
	// CommandAPI starts an intake delivered over the REST API.
	CommandAPI Command = "api"
	// CommandSMTP starts an intake delivered over SMTP.
	CommandSMTP Command = "smtp"
	// CommandSend completes the report without the remaining optional fields.
	CommandSend Command = "send"
)

// ParseCommand normalizes "/api", "API" and "api" to CommandAPI. The
// second result is false for unknown commands.
func ParseCommand(s string) (Command, bool) {
	c := Command(normalizeCommand(s))
	switch c {
	case CommandStart, CommandAPI, CommandSMTP, CommandSend:
		return c, true
	}
	return "", false
}

// Turn is one inbound message of a conversation.
type Turn struct {
	SessionID  string
	From       domain.Identity
	Kind       Kind
	Text       string
	Attachment *domain.Attachment
	Command    Command
}

// Outcome describes what a turn did.
type Outcome string

const (
	OutcomeGreeted    Outcome = "greeted"
	OutcomeStarted    Outcome = "started"
	OutcomeRecorded   Outcome = "recorded"
	OutcomeReprompted Outcome = "reprompted"
	OutcomeCompleted  Outcome = "completed"
	OutcomeIgnored    Outcome = "ignored"
)
