package domain

import (
	"testing"
	"time"
)

func TestSessionBeginClearsFields(t *testing.T) {
	theme := "old"
	s := NewSession("42")
	s.Fields.Theme = &theme
	s.Step = StepAwaitingContact

	s.Begin(ChannelSMTP)

	if s.Step != StepAwaitingTheme {
		t.Fatalf("expected awaiting_theme, got %s", s.Step)
	}
	if s.Channel != ChannelSMTP {
		t.Fatalf("expected smtp channel, got %q", s.Channel)
	}
	if s.Fields.Theme != nil {
		t.Fatal("expected fields to be cleared")
	}
}

func TestSessionReportLeavesSkippedFieldsNil(t *testing.T) {
	theme, desc := "T", "D"
	s := NewSession("42")
	s.Fields.Theme = &theme
	s.Fields.Description = &desc

	r := s.Report()
	if r.Theme != "T" || r.Description != "D" {
		t.Fatalf("unexpected report: %+v", r)
	}
	if r.Contact != nil || r.FilePath != nil {
		t.Fatalf("expected optional fields to be nil: %+v", r)
	}
}

func TestIdentityUserTruncatesToDate(t *testing.T) {
	id := Identity{UserID: 7, FirstName: "Dim"}
	u := id.User(mustParse(t, "2026-10-14T15:04:05Z"))
	if u.RegisteredOn.Hour() != 0 || u.RegisteredOn.Day() != 14 {
		t.Fatalf("unexpected registration date: %v", u.RegisteredOn)
	}
	if id.DisplayName() != "Dim" {
		t.Fatalf("unexpected display name %q", id.DisplayName())
	}
}

func mustParse(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return ts
}
