package apikey

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/careconnect/data-gateway/internal/audit"
)

// captureSink collects audit entries for assertions.
type captureSink struct {
	mu      sync.Mutex
	entries []*audit.Entry
}

func (s *captureSink) Append(_ context.Context, entry *audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *captureSink) actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	actions := make([]string, len(s.entries))
	for i, e := range s.entries {
		actions[i] = e.Action
	}
	return actions
}

func newTestManager() (*Manager, *mockStore, *captureSink, *audit.Recorder) {
	store := newMockStore()
	sink := &captureSink{}
	recorder := audit.NewRecorder(nil, time.Second, sink)
	return NewManager(store, recorder), store, sink, recorder
}

var testActor = Actor{ID: "admin-1", IPAddress: "10.0.0.1", UserAgent: "test-agent"}

func TestIssue(t *testing.T) {
	m, store, sink, recorder := newTestManager()

	cred, err := m.Issue(context.Background(), testActor, IssueOptions{
		Name:         "Census Bureau key",
		Organization: "Census Bureau",
		Permissions:  []Permission{"read:volunteers"},
		Expiration:   24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	if err := ValidateKeyFormat(cred.Key); err != nil {
		t.Errorf("issued key %q has invalid format: %v", cred.Key, err)
	}
	if cred.Status != StatusActive {
		t.Errorf("status = %s, want active", cred.Status)
	}
	if cred.ExpiresAt == nil {
		t.Error("expected ExpiresAt to be set")
	}
	if cred.CreatedBy != testActor.ID {
		t.Errorf("CreatedBy = %s, want %s", cred.CreatedBy, testActor.ID)
	}

	stored, err := store.GetByID(context.Background(), cred.ID)
	if err != nil {
		t.Fatalf("credential not stored: %v", err)
	}
	if stored.Key != cred.Key {
		t.Error("stored key differs from issued key")
	}

	recorder.Wait()
	actions := sink.actions()
	if len(actions) != 1 || actions[0] != audit.ActionGenerateKey {
		t.Errorf("audit actions = %v, want [generate_key]", actions)
	}
}

func TestIssueRejectsUnknownPermission(t *testing.T) {
	m, _, _, _ := newTestManager()

	_, err := m.Issue(context.Background(), testActor, IssueOptions{
		Name:         "bad key",
		Organization: "Org",
		Permissions:  []Permission{"read:everything"},
	})
	if err == nil {
		t.Error("expected error for unknown permission")
	}
}

func TestRevoke(t *testing.T) {
	m, store, sink, recorder := newTestManager()

	cred, _ := m.Issue(context.Background(), testActor, IssueOptions{Name: "k", Organization: "Org"})
	recorder.Wait()

	revoked, err := m.Revoke(context.Background(), testActor, cred.ID)
	if err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}
	if revoked.Status != StatusRevoked {
		t.Errorf("status = %s, want revoked", revoked.Status)
	}

	stored, _ := store.GetByID(context.Background(), cred.ID)
	if stored.Status != StatusRevoked {
		t.Error("revocation not persisted")
	}

	recorder.Wait()
	actions := sink.actions()
	if len(actions) != 2 || actions[1] != audit.ActionRevokeKey {
		t.Errorf("audit actions = %v, want [generate_key revoke_key]", actions)
	}
}

func TestPauseResume(t *testing.T) {
	m, _, sink, recorder := newTestManager()

	cred, _ := m.Issue(context.Background(), testActor, IssueOptions{Name: "k", Organization: "Org"})
	recorder.Wait()

	paused, err := m.Pause(context.Background(), testActor, cred.ID)
	if err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	if paused.Status != StatusPaused {
		t.Errorf("status = %s, want paused", paused.Status)
	}
	recorder.Wait()

	// Pausing again is a conflict.
	if _, err := m.Pause(context.Background(), testActor, cred.ID); !errors.Is(err, ErrNotActive) {
		t.Errorf("second Pause() error = %v, want ErrNotActive", err)
	}

	resumed, err := m.Resume(context.Background(), testActor, cred.ID)
	if err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if resumed.Status != StatusActive {
		t.Errorf("status = %s, want active", resumed.Status)
	}

	if _, err := m.Resume(context.Background(), testActor, cred.ID); !errors.Is(err, ErrNotPaused) {
		t.Errorf("second Resume() error = %v, want ErrNotPaused", err)
	}

	recorder.Wait()
	actions := sink.actions()
	want := []string{audit.ActionGenerateKey, audit.ActionPauseKey, audit.ActionResumeKey}
	if len(actions) != len(want) {
		t.Fatalf("audit actions = %v, want %v", actions, want)
	}
	for i := range want {
		if actions[i] != want[i] {
			t.Errorf("audit action[%d] = %s, want %s", i, actions[i], want[i])
		}
	}
}

func TestEdit(t *testing.T) {
	m, store, sink, recorder := newTestManager()

	cred, _ := m.Issue(context.Background(), testActor, IssueOptions{
		Name:         "old name",
		Organization: "Org",
		Permissions:  []Permission{"read:volunteers"},
	})
	recorder.Wait()

	newName := "new name"
	tier := TierEnterprise
	edited, err := m.Edit(context.Background(), testActor, cred.ID, EditOptions{
		Name:         &newName,
		Permissions:  []Permission{"read:volunteers", "read:events"},
		TierOverride: &tier,
	})
	if err != nil {
		t.Fatalf("Edit() error = %v", err)
	}
	if edited.Name != newName {
		t.Errorf("name = %s, want %s", edited.Name, newName)
	}
	if len(edited.Permissions) != 2 {
		t.Errorf("permissions = %v, want 2 entries", edited.Permissions)
	}
	if edited.TierOverride != TierEnterprise {
		t.Errorf("tier override = %s, want enterprise", edited.TierOverride)
	}

	stored, _ := store.GetByID(context.Background(), cred.ID)
	if stored.Name != newName {
		t.Error("edit not persisted")
	}

	recorder.Wait()
	actions := sink.actions()
	if len(actions) != 2 || actions[1] != audit.ActionEditKey {
		t.Errorf("audit actions = %v, want [generate_key edit_key]", actions)
	}
}

func TestBulkRevoke(t *testing.T) {
	m, _, sink, recorder := newTestManager()

	var ids []string
	for i := 0; i < 3; i++ {
		cred, _ := m.Issue(context.Background(), testActor, IssueOptions{Name: "k", Organization: "Org"})
		ids = append(ids, cred.ID)
	}
	ids = append(ids, "missing-id")
	recorder.Wait()

	count, err := m.BulkRevoke(context.Background(), testActor, ids)
	if err != nil {
		t.Fatalf("BulkRevoke() error = %v", err)
	}
	if count != 3 {
		t.Errorf("revoked count = %d, want 3", count)
	}

	recorder.Wait()
	actions := sink.actions()
	// 3 issues plus exactly one batch entry.
	if len(actions) != 4 || actions[3] != audit.ActionBulkRevokeKeys {
		t.Errorf("audit actions = %v, want one trailing bulk_revoke_keys", actions)
	}
}
