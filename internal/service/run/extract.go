package run

import (
	"fmt"
	"strings"

	"assistchat/internal/models"
	"assistchat/internal/service/agent"
)

// Reply is the display-ready result of a completed run.
type Reply struct {
	Text      string
	Citations []models.Citation
}

// Extract picks the assistant message produced by run and flattens it into a Reply.
//
// Messages are matched on their run id. When no assistant message in the
// listing carries a run id at all, the assistant messages created at or after
// the run are used instead. Among several matches the newest wins; equal
// timestamps keep the earlier position in the listing.
func Extract(messages []agent.RemoteMessage, r *agent.Run) (*Reply, error) {
	if r == nil {
		return nil, fmt.Errorf("extract reply: %w: no run", agent.ErrNoResponse)
	}
	best := pick(messages, r)
	if best == nil {
		return nil, fmt.Errorf("extract reply for run %s: %w", r.ID, agent.ErrNoResponse)
	}

	var (
		text      strings.Builder
		citations []models.Citation
		seen      = make(map[string]struct{})
	)
	for _, block := range best.Content {
		switch block.Kind {
		case agent.BlockText:
			if block.Text == nil {
				continue
			}
			text.WriteString(block.Text.Value)
			for _, ann := range block.Text.Annotations {
				switch ann.Kind {
				case agent.AnnotationFileCitation:
					if ann.FileID == "" {
						continue
					}
					if _, ok := seen[ann.FileID]; ok {
						continue
					}
					seen[ann.FileID] = struct{}{}
					citations = append(citations, models.Citation{DocumentID: ann.FileID, Quote: ann.Quote})
				case agent.AnnotationFilePath, agent.AnnotationUnknown:
				}
			}
		case agent.BlockImageFile, agent.BlockImageURL, agent.BlockUnknown:
		}
	}
	return &Reply{Text: text.String(), Citations: citations}, nil
}

func pick(messages []agent.RemoteMessage, r *agent.Run) *agent.RemoteMessage {
	var (
		matched    []*agent.RemoteMessage
		associated bool
	)
	for i := range messages {
		m := &messages[i]
		if m.Role != models.RoleAssistant {
			continue
		}
		if m.RunID != "" {
			associated = true
		}
		if m.RunID == r.ID {
			matched = append(matched, m)
		}
	}
	if len(matched) == 0 && !associated {
		for i := range messages {
			m := &messages[i]
			if m.Role == models.RoleAssistant && m.CreatedAt >= r.CreatedAt {
				matched = append(matched, m)
			}
		}
	}
	if len(matched) == 0 {
		return nil
	}
	best := matched[0]
	for _, m := range matched[1:] {
		if m.CreatedAt > best.CreatedAt {
			best = m
		}
	}
	return best
}
