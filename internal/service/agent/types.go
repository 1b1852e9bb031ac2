package agent

import (
	"context"

	"assistchat/internal/models"
)

// Client is the typed surface of the remote assistant service.
type Client interface {
	BindAgent(ctx context.Context, id string) (*Definition, error)
	CreateAgent(ctx context.Context, cfg Config) (*Definition, error)
	OpenConversation(ctx context.Context) (string, error)
	PostMessage(ctx context.Context, threadID string, role models.Role, content string) error
	StartRun(ctx context.Context, threadID, agentID string) (*Run, error)
	GetRun(ctx context.Context, threadID, runID string) (*Run, error)
	CancelRun(ctx context.Context, threadID, runID string) error
	ListMessages(ctx context.Context, threadID string, opts ListOptions) ([]RemoteMessage, error)
}

// Definition is the remote agent bound or created for this process.
type Definition struct {
	ID             string
	Name           string
	Model          string
	Instructions   string
	Tools          []string
	VectorStoreIDs []string
	Temperature    *float32
	TopP           *float32
}

// Config describes an agent to create.
type Config struct {
	Name           string
	Model          string
	Instructions   string
	Tools          []string
	VectorStoreIDs []string
	Temperature    *float32
	TopP           *float32
}

type RunStatus string

const (
	RunQueued         RunStatus = "queued"
	RunInProgress     RunStatus = "in_progress"
	RunCancelling     RunStatus = "cancelling"
	RunCompleted      RunStatus = "completed"
	RunRequiresAction RunStatus = "requires_action"
	RunFailed         RunStatus = "failed"
)

// Pending reports whether the remote service is still working on the run.
func (s RunStatus) Pending() bool {
	switch s {
	case RunQueued, RunInProgress, RunCancelling:
		return true
	default:
		return false
	}
}

// Run is a snapshot of one remote run.
type Run struct {
	ID        string
	ThreadID  string
	AgentID   string
	Status    RunStatus
	LastError string
	CreatedAt int64
}

type ListOptions struct {
	// RunID narrows the listing to messages produced by one run, when the service supports it.
	RunID string
	Limit int
}

// RemoteMessage is a thread message as returned by the service.
type RemoteMessage struct {
	ID        string
	Role      models.Role
	RunID     string
	CreatedAt int64
	Content   []ContentBlock
}

type BlockKind int

const (
	BlockUnknown BlockKind = iota
	BlockText
	BlockImageFile
	BlockImageURL
)

// ContentBlock is one element of a message body. Only the field matching Kind is set.
type ContentBlock struct {
	Kind   BlockKind
	Text   *TextSegment
	FileID string
	URL    string
	// RawType keeps the service's type tag for unknown blocks.
	RawType string
}

type TextSegment struct {
	Value       string
	Annotations []Annotation
}

type AnnotationKind int

const (
	AnnotationUnknown AnnotationKind = iota
	AnnotationFileCitation
	AnnotationFilePath
)

// Annotation marks a span of generated text. FileID is set for citation and path kinds.
type Annotation struct {
	Kind       AnnotationKind
	Text       string
	FileID     string
	Quote      string
	StartIndex int
	EndIndex   int
}
