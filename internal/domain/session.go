package domain

// Step is the field a session is waiting for.
type Step string

const (
	StepIdle                Step = "idle"
	StepAwaitingTheme       Step = "awaiting_theme"
	StepAwaitingDescription Step = "awaiting_description"
	StepAwaitingContact     Step = "awaiting_contact"
	StepAwaitingFile        Step = "awaiting_file"
)

// Channel is the downstream target a report is forwarded to.
type Channel string

const (
	ChannelUnset Channel = ""
	ChannelAPI   Channel = "api"
	ChannelSMTP  Channel = "smtp"
)

// Valid reports whether c names a delivery channel.
func (c Channel) Valid() bool {
	return c == ChannelAPI || c == ChannelSMTP
}

// Fields holds the partially collected report.
type Fields struct {
	Theme       *string `json:"theme,omitempty"`
	Description *string `json:"description,omitempty"`
	Contact     *string `json:"contact,omitempty"`
	FilePath    *string `json:"file_path,omitempty"`
}

// Session is the intake state of one conversation.
type Session struct {
	ID      string  `json:"id"`
	Step    Step    `json:"step"`
	Fields  Fields  `json:"fields"`
	Channel Channel `json:"channel"`
}

// NewSession returns an idle session.
func NewSession(id string) *Session {
	return &Session{ID: id, Step: StepIdle}
}

// IsIdle returns true if no intake is in progress.
func (s *Session) IsIdle() bool {
	return s.Step == StepIdle || s.Step == ""
}

// Begin starts a fresh intake on the given channel, discarding any fields
// collected so far.
func (s *Session) Begin(ch Channel) {
	s.Channel = ch
	s.Fields = Fields{}
	s.Step = StepAwaitingTheme
}

// Reset returns the session to idle.
func (s *Session) Reset() {
	s.Step = StepIdle
	s.Fields = Fields{}
	s.Channel = ChannelUnset
}

// Report assembles the collected fields. Missing mandatory fields become
// empty strings.
func (s *Session) Report() Report {
	r := Report{Contact: s.Fields.Contact, FilePath: s.Fields.FilePath}
	if s.Fields.Theme != nil {
		r.Theme = *s.Fields.Theme
	}
	if s.Fields.Description != nil {
		r.Description = *s.Fields.Description
	}
	return r
}
