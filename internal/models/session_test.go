package models

import (
	"strings"
	"testing"
)

func TestSessionAppendAndClear(t *testing.T) {
	s := &Session{ID: "s1", ThreadID: "thread_1", Title: "Budget"}
	s.AppendUser("hi")
	s.AppendAssistant("hello", []Citation{{DocumentID: "doc_1"}})

	if len(s.Messages) != 2 || s.Messages[0].Role != RoleUser || s.Messages[1].Role != RoleAssistant {
		t.Fatalf("unexpected log: %+v", s.Messages)
	}
	if s.UpdatedAt.IsZero() {
		t.Fatal("UpdatedAt not set")
	}

	s.Clear()
	if s.ThreadID != "" || s.Title != "" || len(s.Messages) != 0 {
		t.Fatalf("clear left state behind: %+v", s)
	}
	if s.ID != "s1" {
		t.Fatal("clear must keep the session id")
	}
}

func TestSessionCloneIsDeep(t *testing.T) {
	s := &Session{ID: "s1"}
	s.AppendAssistant("answer", []Citation{{DocumentID: "doc_1"}})

	cp := s.Clone()
	cp.Messages[0].Content = "changed"
	cp.Messages[0].Citations[0].DocumentID = "doc_2"
	cp.AppendUser("more")

	if s.Messages[0].Content != "answer" || s.Messages[0].Citations[0].DocumentID != "doc_1" {
		t.Fatalf("clone shares message state: %+v", s.Messages[0])
	}
	if len(s.Messages) != 1 {
		t.Fatalf("clone shares the log slice: %d", len(s.Messages))
	}
	var nilSess *Session
	if nilSess.Clone() != nil {
		t.Fatal("nil clone should be nil")
	}
}

func TestFallbackTitle(t *testing.T) {
	s := &Session{}
	if got := s.FallbackTitle(10); got != "New Conversation" {
		t.Fatalf("empty session title %q", got)
	}
	s.AppendUser("short")
	if got := s.FallbackTitle(10); got != "short" {
		t.Fatalf("got %q", got)
	}
	long := &Session{}
	long.AppendUser(strings.Repeat("é", 12))
	if got := long.FallbackTitle(10); got != strings.Repeat("é", 10)+"…" {
		t.Fatalf("got %q", got)
	}
}
