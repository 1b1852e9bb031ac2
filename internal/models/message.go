package models

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of the session's conversation log.
type Message struct {
	Role      Role       `json:"role"`
	Content   string     `json:"content"`
	Citations []Citation `json:"citations,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Citation points at a source document the assistant used while answering.
type Citation struct {
	DocumentID string `json:"document_id"`
	Quote      string `json:"quote,omitempty"`
}
