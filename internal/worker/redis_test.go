package worker

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"assistchat/internal/models"
	"assistchat/internal/redis"
	"assistchat/internal/store"
)

func newSharedStore(t *testing.T, mr *miniredis.Miniredis) *store.Redis {
	t.Helper()
	client, err := redis.Dial(context.Background(), &goredis.Options{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("dial miniredis: %v", err)
	}
	st := store.NewRedis(client, time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(func() { st.Close() })
	return st
}

func TestManagersShareRedisSession(t *testing.T) {
	mr := miniredis.RunT(t)
	stA := newSharedStore(t, mr)
	stB := newSharedStore(t, mr)
	turns := newMockTurns()

	a := newTestManager(turns, stA, Config{ResetBus: stA, Shared: true})
	defer a.Stop()
	b := newTestManager(turns, stB, Config{ResetBus: stB, Shared: true})
	defer b.Stop()
	ctx := context.Background()

	for i, step := range []struct {
		m       *Manager
		content string
	}{{a, "one"}, {b, "two"}, {a, "three"}} {
		sess, _, err := step.m.Send(ctx, "s1", step.content, nil)
		if err != nil {
			t.Fatalf("send %q: %v", step.content, err)
		}
		if want := 2 * (i + 1); len(sess.Messages) != want {
			t.Fatalf("after %q: got %d messages, want %d", step.content, len(sess.Messages), want)
		}
	}

	stored, err := stA.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	want := []string{"one", "echo: one", "two", "echo: two", "three", "echo: three"}
	if len(stored.Messages) != len(want) {
		t.Fatalf("expected %d stored messages, got %d", len(want), len(stored.Messages))
	}
	for i, msg := range stored.Messages {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		if msg.Role != role || msg.Content != want[i] {
			t.Fatalf("message %d = %s %q, want %s %q", i, msg.Role, msg.Content, role, want[i])
		}
	}
}

func TestManagerSeesRemoteResetOnSharedStore(t *testing.T) {
	mr := miniredis.RunT(t)
	stA := newSharedStore(t, mr)
	stB := newSharedStore(t, mr)
	turns := newMockTurns()

	a := newTestManager(turns, stA, Config{ResetBus: stA, Shared: true})
	defer a.Stop()
	b := newTestManager(turns, stB, Config{ResetBus: stB, Shared: true})
	defer b.Stop()
	ctx := context.Background()

	if _, _, err := a.Send(ctx, "s1", "hello", nil); err != nil {
		t.Fatalf("send: %v", err)
	}
	reset, err := b.Reset(ctx, "s1")
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	sess, err := a.Session(ctx, "s1")
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	if len(sess.Messages) != 0 || sess.ThreadID != reset.ThreadID {
		t.Fatalf("replica kept a stale conversation: %+v", sess)
	}
}
