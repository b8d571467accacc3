// Package intake drives the multi-turn conversation that collects an
// incident report one field at a time.
package intake

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/incident-intake/internal/domain"
	"github.com/ashureev/incident-intake/internal/metrics"
	"github.com/ashureev/incident-intake/internal/session"
)

// Downloader materializes an attachment and returns its local path.
type Downloader interface {
	Download(ctx context.Context, a domain.Attachment) (string, error)
}

// Replier sends a text reply to a session.
type Replier interface {
	Send(ctx context.Context, sessionID, text string) error
}

// Dispatcher persists and forwards a completed report. It reports the
// outcome to the user itself.
type Dispatcher interface {
	Dispatch(ctx context.Context, sessionID string, from domain.Identity, report domain.Report, ch domain.Channel) (int64, error)
}

// UserRegistrar registers users on the start command.
type UserRegistrar interface {
	RegisterUser(ctx context.Context, user *domain.User) error
}

// Config holds the machine's collaborators. Users and Metrics are optional.
type Config struct {
	Sessions   session.Store
	Files      Downloader
	Replies    Replier
	Dispatcher Dispatcher
	Users      UserRegistrar
	Metrics    *metrics.IntakeMetrics
}

// Machine advances intake sessions. Turns of one session are processed one
// at a time; different sessions proceed concurrently.
type Machine struct {
	sessions   session.Store
	files      Downloader
	replies    Replier
	dispatcher Dispatcher
	users      UserRegistrar
	metrics    *metrics.IntakeMetrics
	locks      *keyedMutex
	now        func() time.Time
}

// NewMachine creates a conversation state machine.
func NewMachine(cfg Config) *Machine {
	return &Machine{
		sessions:   cfg.Sessions,
		files:      cfg.Files,
		replies:    cfg.Replies,
		dispatcher: cfg.Dispatcher,
		users:      cfg.Users,
		metrics:    cfg.Metrics,
		locks:      newKeyedMutex(),
		now:        time.Now,
	}
}

// HandleTurn applies one inbound turn. It returns an error only when the
// session state could not be read or written.
func (m *Machine) HandleTurn(ctx context.Context, turn Turn) (Outcome, error) {
	if turn.SessionID == "" {
		return OutcomeIgnored, fmt.Errorf("intake: turn without session id")
	}

	unlock := m.locks.Lock(turn.SessionID)
	defer unlock()

	outcome, err := m.handle(ctx, turn)
	if err != nil {
		m.metrics.ObserveTurn(string(turn.Kind), "error")
		return outcome, err
	}
	m.metrics.ObserveTurn(string(turn.Kind), string(outcome))
	return outcome, nil
}

func (m *Machine) handle(ctx context.Context, turn Turn) (Outcome, error) {
	if turn.Kind == KindCommand {
		switch turn.Command {
		case CommandStart:
			m.greet(ctx, turn)
			return OutcomeGreeted, nil
		case CommandAPI:
			return m.start(ctx, turn, domain.ChannelAPI)
		case CommandSMTP:
			return m.start(ctx, turn, domain.ChannelSMTP)
		}
	}

	s, err := m.sessions.Load(ctx, turn.SessionID)
	if err != nil {
		return OutcomeIgnored, fmt.Errorf("intake: load session: %w", err)
	}
	if s.IsIdle() {
		slog.Debug("Turn outside an intake ignored", "session_id", turn.SessionID, "kind", turn.Kind)
		return OutcomeIgnored, nil
	}

	switch turn.Kind {
	case KindText:
		return m.recordText(ctx, s, turn)
	case KindAttachment:
		if s.Step != domain.StepAwaitingFile || turn.Attachment == nil {
			slog.Debug("Attachment outside the file step ignored", "session_id", s.ID, "step", s.Step)
			return OutcomeIgnored, nil
		}
		// The file step ends the intake; a caller going away must not lose it.
		ctx = context.WithoutCancel(ctx)
		if path, err := m.files.Download(ctx, *turn.Attachment); err != nil {
			slog.Warn("Attachment download failed, sending without file", "session_id", s.ID, "error", err)
		} else {
			s.Fields.FilePath = &path
		}
		return m.complete(ctx, s, turn)
	case KindCommand:
		if turn.Command == CommandSend && (s.Step == domain.StepAwaitingContact || s.Step == domain.StepAwaitingFile) {
			return m.complete(ctx, s, turn)
		}
		slog.Debug("Command ignored at this step", "session_id", s.ID, "step", s.Step, "command", turn.Command)
		return OutcomeIgnored, nil
	}
	return OutcomeIgnored, nil
}

func (m *Machine) greet(ctx context.Context, turn Turn) {
	slog.Info("User started chat", "session_id", turn.SessionID, "user_id", turn.From.UserID, "username", turn.From.Username)
	m.reply(ctx, turn.SessionID, greeting(turn.From))
	if m.users == nil {
		return
	}
	if err := m.users.RegisterUser(ctx, turn.From.User(m.now())); err != nil {
		slog.Error("Failed to register user", "user_id", turn.From.UserID, "error", err)
	}
}

func (m *Machine) start(ctx context.Context, turn Turn, ch domain.Channel) (Outcome, error) {
	s, err := m.sessions.Load(ctx, turn.SessionID)
	if err != nil {
		return OutcomeIgnored, fmt.Errorf("intake: load session: %w", err)
	}
	if !s.IsIdle() {
		slog.Info("Intake restarted, discarding collected fields", "session_id", s.ID, "step", s.Step)
	}
	s.Begin(ch)
	if err := m.sessions.Save(ctx, s); err != nil {
		return OutcomeIgnored, fmt.Errorf("intake: save session: %w", err)
	}

	slog.Info("Intake started", "session_id", s.ID, "user_id", turn.From.UserID, "username", turn.From.Username, "channel", ch)
	m.reply(ctx, s.ID, intro(ch))
	m.reply(ctx, s.ID, promptTheme)
	return OutcomeStarted, nil
}

func (m *Machine) recordText(ctx context.Context, s *domain.Session, turn Turn) (Outcome, error) {
	text := turn.Text
	var prompt string

	switch s.Step {
	case domain.StepAwaitingTheme:
		s.Fields.Theme = &text
		s.Step = domain.StepAwaitingDescription
		prompt = promptDescription
	case domain.StepAwaitingDescription:
		s.Fields.Description = &text
		s.Step = domain.StepAwaitingContact
		prompt = promptContact
	case domain.StepAwaitingContact:
		s.Fields.Contact = &text
		s.Step = domain.StepAwaitingFile
		prompt = promptFile
	case domain.StepAwaitingFile:
		m.reply(ctx, s.ID, promptFile)
		return OutcomeReprompted, nil
	default:
		return OutcomeIgnored, nil
	}

	if err := m.sessions.Save(ctx, s); err != nil {
		return OutcomeIgnored, fmt.Errorf("intake: save session: %w", err)
	}
	m.reply(ctx, s.ID, prompt)
	return OutcomeRecorded, nil
}

// complete resets the session and hands the report to the dispatcher. It
// runs detached from caller cancellation so a completed report is always
// persisted; the dispatcher bounds the delivery attempt itself.
func (m *Machine) complete(ctx context.Context, s *domain.Session, turn Turn) (Outcome, error) {
	ctx = context.WithoutCancel(ctx)
	report := s.Report()
	ch := s.Channel

	s.Reset()
	if err := m.sessions.Save(ctx, s); err != nil {
		slog.Error("Failed to reset session, retrying with delete", "session_id", s.ID, "error", err)
		if err := m.sessions.Reset(ctx, s.ID); err != nil {
			slog.Error("Failed to reset session", "session_id", s.ID, "error", err)
		}
	}

	if _, err := m.dispatcher.Dispatch(ctx, s.ID, turn.From, report, ch); err != nil {
		slog.Warn("Dispatch finished with error", "session_id", s.ID, "channel", ch, "error", err)
	}
	return OutcomeCompleted, nil
}

func (m *Machine) reply(ctx context.Context, sessionID, text string) {
	if m.replies == nil {
		return
	}
	if err := m.replies.Send(ctx, sessionID, text); err != nil {
		slog.Warn("Failed to send reply", "session_id", sessionID, "error", err)
	}
}
