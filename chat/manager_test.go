package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/onnwee/livechat-tender/testutil"
)

func TestManagerAdd(t *testing.T) {
	srv := testutil.NewMockYouTubeServer(t)
	srv.SetChannelPage("UCb", testutil.OfflinePage())
	srv.SetChannelPage("UCa", testutil.OfflinePage())

	ctx, cancel := context.WithCancel(context.Background())
	m := NewManager(ctx, testConfig(srv, nil, nil, nil))

	if err := m.Add(Target{ChannelID: "UCb"}); err != nil {
		t.Fatalf("Add(UCb): %v", err)
	}
	if err := m.Add(Target{ChannelID: "UCa"}); err != nil {
		t.Fatalf("Add(UCa): %v", err)
	}
	if err := m.Add(Target{ChannelID: "UCa"}); !errors.Is(err, ErrDuplicateTarget) {
		t.Errorf("duplicate Add = %v, want ErrDuplicateTarget", err)
	}
	if err := m.Add(Target{}); !errors.Is(err, ErrInvalidTarget) {
		t.Errorf("empty Add = %v, want ErrInvalidTarget", err)
	}

	st := m.Statuses()
	if len(st) != 2 {
		t.Fatalf("Statuses() = %d entries, want 2", len(st))
	}
	if st[0].Target != "channel:UCa" || st[1].Target != "channel:UCb" {
		t.Errorf("Statuses() order = %s, %s", st[0].Target, st[1].Target)
	}

	cancel()
	done := make(chan struct{})
	go func() {
		m.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Wait did not return after cancel")
	}
}
