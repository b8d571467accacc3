package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/incident-intake/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "nested", "intake.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func strPtr(s string) *string { return &s }

func TestRegisterUserIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := &domain.User{ID: 777777777, FirstName: "Test_Dim", Username: "test_dim"}
	if err := s.RegisterUser(ctx, first); err != nil {
		t.Fatalf("first RegisterUser failed: %v", err)
	}
	second := &domain.User{ID: 777777777, FirstName: "Other"}
	if err := s.RegisterUser(ctx, second); err != nil {
		t.Fatalf("duplicate RegisterUser should be a no-op, got %v", err)
	}

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM users WHERE id = ?`, first.ID).Scan(&count); err != nil {
		t.Fatalf("count users: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one user row, got %d", count)
	}

	user, err := s.GetUser(ctx, first.ID)
	if err != nil || user == nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if user.FirstName != "Test_Dim" {
		t.Fatalf("expected first registration to win, got %q", user.FirstName)
	}
	if user.RegisteredOn.Format(registerDateLayout) != time.Now().Format(registerDateLayout) {
		t.Fatalf("expected registration date today, got %v", user.RegisteredOn)
	}
}

func TestIsRegistered(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ok, err := s.IsRegistered(ctx, 1)
	if err != nil {
		t.Fatalf("IsRegistered failed: %v", err)
	}
	if ok {
		t.Fatal("expected unknown user to be unregistered")
	}

	if err := s.RegisterUser(ctx, &domain.User{ID: 1, FirstName: "A"}); err != nil {
		t.Fatalf("RegisterUser failed: %v", err)
	}
	ok, err = s.IsRegistered(ctx, 1)
	if err != nil || !ok {
		t.Fatalf("expected registered user, got %v, %v", ok, err)
	}
}

func TestAddIncidentRequiresUser(t *testing.T) {
	s := newTestStore(t)

	_, err := s.AddIncident(context.Background(), &domain.Incident{
		UserID: 404,
		Report: domain.Report{Theme: "Bad signal", Description: "Was better before"},
	})
	if !errors.Is(err, ErrIntegrity) {
		t.Fatalf("expected ErrIntegrity, got %v", err)
	}

	ids, err := s.ListIncidentIDs(context.Background(), nil)
	if err != nil {
		t.Fatalf("ListIncidentIDs failed: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected no incidents, got %v", ids)
	}
}

func TestAddIncidentRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.RegisterUser(ctx, &domain.User{ID: 10, FirstName: "A"}); err != nil {
		t.Fatalf("RegisterUser failed: %v", err)
	}

	anon := &domain.Incident{UserID: 10, Report: domain.Report{Theme: "T1", Description: "D1"}}
	id1, err := s.AddIncident(ctx, anon)
	if err != nil {
		t.Fatalf("AddIncident failed: %v", err)
	}
	if anon.ID != id1 {
		t.Fatalf("expected incident ID to be set, got %d", anon.ID)
	}

	full := &domain.Incident{UserID: 10, Report: domain.Report{
		Theme: "T2", Description: "D2", Contact: strPtr("c@x.com"), FilePath: strPtr("/data/a.txt"),
	}}
	id2, err := s.AddIncident(ctx, full)
	if err != nil {
		t.Fatalf("AddIncident failed: %v", err)
	}
	if id2 <= id1 {
		t.Fatalf("expected increasing ids, got %d then %d", id1, id2)
	}

	got, err := s.GetIncident(ctx, id1)
	if err != nil || got == nil {
		t.Fatalf("GetIncident failed: %v", err)
	}
	if got.Contact != nil || got.FilePath != nil {
		t.Fatalf("expected NULL contact and file, got %+v", got)
	}

	got, err = s.GetIncident(ctx, id2)
	if err != nil || got == nil {
		t.Fatalf("GetIncident failed: %v", err)
	}
	if got.Contact == nil || *got.Contact != "c@x.com" || got.FilePath == nil || *got.FilePath != "/data/a.txt" {
		t.Fatalf("unexpected incident: %+v", got)
	}

	missing, err := s.GetIncident(ctx, 9999)
	if err != nil || missing != nil {
		t.Fatalf("expected nil for missing incident, got %+v, %v", missing, err)
	}
}

func TestListIncidentIDsFiltersByUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, id := range []int64{1, 2} {
		if err := s.RegisterUser(ctx, &domain.User{ID: id}); err != nil {
			t.Fatalf("RegisterUser failed: %v", err)
		}
	}
	for _, uid := range []int64{1, 2, 1} {
		if _, err := s.AddIncident(ctx, &domain.Incident{UserID: uid, Report: domain.Report{Theme: "t", Description: "d"}}); err != nil {
			t.Fatalf("AddIncident failed: %v", err)
		}
	}

	user := int64(1)
	ids, err := s.ListIncidentIDs(ctx, &user)
	if err != nil {
		t.Fatalf("ListIncidentIDs failed: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 incidents for user 1, got %v", ids)
	}

	all, err := s.ListIncidentIDs(ctx, nil)
	if err != nil {
		t.Fatalf("ListIncidentIDs failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 incidents, got %v", all)
	}
}

func TestConcurrentWritesAreSerialized(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	const workers = 20
	var wg sync.WaitGroup
	errs := make(chan error, workers*2)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			if err := s.RegisterUser(ctx, &domain.User{ID: id % 5}); err != nil {
				errs <- err
				return
			}
			if _, err := s.AddIncident(ctx, &domain.Incident{UserID: id % 5, Report: domain.Report{Theme: "t", Description: "d"}}); err != nil {
				errs <- err
			}
		}(int64(i))
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Fatalf("concurrent write failed: %v", err)
	}

	ids, err := s.ListIncidentIDs(ctx, nil)
	if err != nil {
		t.Fatalf("ListIncidentIDs failed: %v", err)
	}
	if len(ids) != workers {
		t.Fatalf("expected %d incidents, got %d", workers, len(ids))
	}
}
