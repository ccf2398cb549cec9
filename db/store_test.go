package db

import (
	"context"
	"testing"
	"time"

	"github.com/onnwee/livechat-tender/livechat"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db := openTestDB(t)
	if err := RunMigrations(db); err != nil {
		t.Fatalf("RunMigrations() error = %v", err)
	}
	return NewStore(db)
}

func TestStoreSessionLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	start := time.Date(2024, 10, 15, 14, 30, 0, 0, time.UTC)

	id, err := s.CreateSession(ctx, "UCchannel", "abc123", start)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := s.EndSession(ctx, id, livechat.ReasonStreamFinished, start.Add(time.Hour)); err != nil {
		t.Fatalf("EndSession: %v", err)
	}
	// second end keeps the first reason
	if err := s.EndSession(ctx, id, "other", start.Add(2*time.Hour)); err != nil {
		t.Fatalf("EndSession again: %v", err)
	}

	sessions, err := s.ListSessions(ctx, 10)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("got %d sessions, want 1", len(sessions))
	}
	got := sessions[0]
	if got.ID != id || got.BroadcastID != "abc123" || got.Target != "UCchannel" {
		t.Errorf("session = %+v", got)
	}
	if got.EndedAt == nil || got.EndReason != livechat.ReasonStreamFinished {
		t.Errorf("ended = %v reason = %q", got.EndedAt, got.EndReason)
	}
}

func TestStoreCommentsIdempotentAndOrdered(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 10, 15, 14, 30, 0, 0, time.UTC)

	sid, err := s.CreateSession(ctx, "abc123", "abc123", base)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	comments := []livechat.Comment{
		{ID: "c2", Author: livechat.Author{Name: "bob"}, Message: []livechat.MessagePart{{Text: "second"}}, Timestamp: base.Add(2 * time.Second)},
		{ID: "c1", Author: livechat.Author{Name: "alice"}, Message: []livechat.MessagePart{{Text: "first"}}, Timestamp: base.Add(time.Second)},
		{ID: "c3", Author: livechat.Author{Name: "carol"}, Message: []livechat.MessagePart{{Text: "paid"}},
			SuperChat: &livechat.SuperChat{Amount: "$5.00", Color: "#1e88e5"}, Timestamp: base.Add(3 * time.Second)},
	}
	for _, c := range comments {
		inserted, err := s.InsertComment(ctx, sid, "abc123", c)
		if err != nil {
			t.Fatalf("InsertComment(%s): %v", c.ID, err)
		}
		if !inserted {
			t.Errorf("InsertComment(%s) = false on first insert", c.ID)
		}
	}
	inserted, err := s.InsertComment(ctx, sid, "abc123", comments[0])
	if err != nil {
		t.Fatalf("duplicate InsertComment: %v", err)
	}
	if inserted {
		t.Error("duplicate InsertComment reported inserted")
	}

	rows, err := s.ListComments(ctx, "abc123", base, 0)
	if err != nil {
		t.Fatalf("ListComments: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d comments, want 3", len(rows))
	}
	wantOrder := []string{"c1", "c2", "c3"}
	for i, r := range rows {
		if r.CommentID != wantOrder[i] {
			t.Errorf("rows[%d] = %s, want %s", i, r.CommentID, wantOrder[i])
		}
	}
	if !rows[2].IsSuperChat || rows[2].Amount != "$5.00" {
		t.Errorf("super chat row = %+v", rows[2])
	}

	since, err := s.ListComments(ctx, "abc123", base.Add(time.Second), 10)
	if err != nil {
		t.Fatalf("ListComments since: %v", err)
	}
	if len(since) != 2 {
		t.Errorf("comments after t1 = %d, want 2", len(since))
	}
}
