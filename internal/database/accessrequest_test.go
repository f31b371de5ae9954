package database

import (
	"context"
	"testing"
	"time"
)

func testAccessRequest(id string) AccessRequest {
	return AccessRequest{
		ID:            id,
		Organization:  "City Health Alliance",
		ContactPerson: "Jordan Reyes",
		Email:         "jordan@cityhealth.example",
		Purpose:       "Quarterly volunteer engagement analysis",
		DataTypes:     []string{"volunteers", "events"},
		Justification: "Public reporting mandate",
		Status:        AccessRequestPending,
		CreatedAt:     time.Now().UTC().Truncate(time.Second),
	}
}

func TestAccessRequestRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	want := testAccessRequest("req-1")
	if err := db.CreateAccessRequest(ctx, want); err != nil {
		t.Fatalf("CreateAccessRequest() error: %v", err)
	}

	got, err := db.GetAccessRequest(ctx, "req-1")
	if err != nil {
		t.Fatalf("GetAccessRequest() error: %v", err)
	}
	if got.Organization != want.Organization || got.Email != want.Email {
		t.Errorf("GetAccessRequest() = %+v, want %+v", got, want)
	}
	if len(got.DataTypes) != 2 || got.DataTypes[0] != "volunteers" {
		t.Errorf("DataTypes = %v, want [volunteers events]", got.DataTypes)
	}
	if got.Status != AccessRequestPending {
		t.Errorf("Status = %s, want pending", got.Status)
	}
	if got.ReviewedAt != nil || got.APIKeyID != "" {
		t.Error("unreviewed request should have no review fields set")
	}
}

func TestGetAccessRequestNotFound(t *testing.T) {
	db := newTestDB(t)
	if _, err := db.GetAccessRequest(context.Background(), "ghost"); err != ErrAccessRequestNotFound {
		t.Errorf("GetAccessRequest(unknown) error = %v, want ErrAccessRequestNotFound", err)
	}
}

func TestListAccessRequestsFilter(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	base := time.Now().UTC().Truncate(time.Second)
	seeds := []struct {
		id     string
		status string
	}{
		{"req-a", AccessRequestPending},
		{"req-b", AccessRequestApproved},
		{"req-c", AccessRequestPending},
	}
	for i, s := range seeds {
		req := testAccessRequest(s.id)
		req.Status = s.status
		req.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if err := db.CreateAccessRequest(ctx, req); err != nil {
			t.Fatalf("CreateAccessRequest(%s) error: %v", s.id, err)
		}
	}

	all, err := db.ListAccessRequests(ctx, "")
	if err != nil {
		t.Fatalf("ListAccessRequests() error: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d requests, want 3", len(all))
	}
	if all[0].ID != "req-c" {
		t.Errorf("first request = %s, want newest (req-c)", all[0].ID)
	}

	pending, err := db.ListAccessRequests(ctx, AccessRequestPending)
	if err != nil {
		t.Fatalf("ListAccessRequests(pending) error: %v", err)
	}
	if len(pending) != 2 {
		t.Errorf("got %d pending requests, want 2", len(pending))
	}
	for _, req := range pending {
		if req.Status != AccessRequestPending {
			t.Errorf("filtered list returned status %s", req.Status)
		}
	}
}

func TestReviewAccessRequest(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	if err := db.CreateAccessRequest(ctx, testAccessRequest("req-2")); err != nil {
		t.Fatalf("CreateAccessRequest() error: %v", err)
	}

	err := db.ReviewAccessRequest(ctx, "req-2", AccessRequestApproved, "verified mandate", "admin", "key-9")
	if err != nil {
		t.Fatalf("ReviewAccessRequest() error: %v", err)
	}

	got, err := db.GetAccessRequest(ctx, "req-2")
	if err != nil {
		t.Fatalf("GetAccessRequest() error: %v", err)
	}
	if got.Status != AccessRequestApproved {
		t.Errorf("Status = %s, want approved", got.Status)
	}
	if got.ReviewNotes != "verified mandate" || got.ReviewedBy != "admin" {
		t.Errorf("review fields not persisted: %+v", got)
	}
	if got.ReviewedAt == nil {
		t.Error("ReviewedAt should be set after review")
	}
	if got.APIKeyID != "key-9" {
		t.Errorf("APIKeyID = %s, want key-9", got.APIKeyID)
	}
}

func TestReviewAccessRequestRejection(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	if err := db.CreateAccessRequest(ctx, testAccessRequest("req-3")); err != nil {
		t.Fatalf("CreateAccessRequest() error: %v", err)
	}

	err := db.ReviewAccessRequest(ctx, "req-3", AccessRequestRejected, "purpose too broad", "admin", "")
	if err != nil {
		t.Fatalf("ReviewAccessRequest() error: %v", err)
	}

	got, err := db.GetAccessRequest(ctx, "req-3")
	if err != nil {
		t.Fatalf("GetAccessRequest() error: %v", err)
	}
	if got.Status != AccessRequestRejected {
		t.Errorf("Status = %s, want rejected", got.Status)
	}
	if got.APIKeyID != "" {
		t.Errorf("rejection should not attach a key, got %s", got.APIKeyID)
	}
}

func TestReviewAccessRequestNotFound(t *testing.T) {
	db := newTestDB(t)
	err := db.ReviewAccessRequest(context.Background(), "ghost", AccessRequestApproved, "", "admin", "")
	if err != ErrAccessRequestNotFound {
		t.Errorf("ReviewAccessRequest(unknown) error = %v, want ErrAccessRequestNotFound", err)
	}
}
