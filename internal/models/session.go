package models

import (
	"time"
	"unicode/utf8"
)

// Session is the conversation state owned by one browser session.
// ThreadID is the remote conversation handle; it only changes on reset.
type Session struct {
	ID        string     `json:"id"`
	ThreadID  string     `json:"thread_id"`
	Title     string     `json:"title"`
	Messages  []*Message `json:"messages"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// AppendUser adds a user message to the log.
func (s *Session) AppendUser(content string) *Message {
	return s.append(&Message{Role: RoleUser, Content: content})
}

// AppendAssistant adds an assistant reply; content is stored as given.
func (s *Session) AppendAssistant(content string, citations []Citation) *Message {
	return s.append(&Message{Role: RoleAssistant, Content: content, Citations: citations})
}

func (s *Session) append(msg *Message) *Message {
	now := time.Now().UTC()
	msg.CreatedAt = now
	s.Messages = append(s.Messages, msg)
	s.UpdatedAt = now
	return msg
}

// Clear drops the thread handle and the log.
func (s *Session) Clear() {
	s.ThreadID = ""
	s.Title = ""
	s.Messages = nil
	s.UpdatedAt = time.Now().UTC()
}

// Clone returns a deep copy safe to hand to another goroutine.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Messages = make([]*Message, 0, len(s.Messages))
	for _, m := range s.Messages {
		if m == nil {
			continue
		}
		mc := *m
		if m.Citations != nil {
			mc.Citations = append([]Citation(nil), m.Citations...)
		}
		cp.Messages = append(cp.Messages, &mc)
	}
	return &cp
}

// FallbackTitle derives a title from the first user message.
func (s *Session) FallbackTitle(limit int) string {
	for _, m := range s.Messages {
		if m.Role != RoleUser {
			continue
		}
		if utf8.RuneCountInString(m.Content) <= limit {
			return m.Content
		}
		runes := []rune(m.Content)
		return string(runes[:limit]) + "…"
	}
	return "New Conversation"
}
