package session

import (
	"context"
	"testing"

	"github.com/ashureev/incident-intake/internal/domain"
)

func TestMemoryStoreLoadMissingIsIdle(t *testing.T) {
	m := NewMemoryStore()
	s, err := m.Load(context.Background(), "abc")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if s.ID != "abc" || !s.IsIdle() {
		t.Fatalf("expected idle session abc, got %+v", s)
	}
}

func TestMemoryStoreSaveReturnsCopies(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	s := domain.NewSession("abc")
	s.Begin(domain.ChannelAPI)
	if err := m.Save(ctx, s); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	s.Step = domain.StepAwaitingFile

	got, err := m.Load(ctx, "abc")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.Step != domain.StepAwaitingTheme {
		t.Fatalf("expected stored copy to be unaffected, got %s", got.Step)
	}
	if m.Len() != 1 {
		t.Fatalf("expected 1 session, got %d", m.Len())
	}
}

func TestMemoryStoreIdleSaveDrops(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	s := domain.NewSession("abc")
	s.Begin(domain.ChannelSMTP)
	_ = m.Save(ctx, s)

	s.Reset()
	if err := m.Save(ctx, s); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if m.Len() != 0 {
		t.Fatalf("expected idle session to be dropped, got %d", m.Len())
	}

	s.Begin(domain.ChannelSMTP)
	_ = m.Save(ctx, s)
	if err := m.Reset(ctx, "abc"); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if m.Len() != 0 {
		t.Fatalf("expected reset to drop session, got %d", m.Len())
	}
}
