package agent

import (
	"encoding/json"

	openai "github.com/sashabaranov/go-openai"

	"assistchat/internal/models"
)

func assistantRequest(cfg Config) openai.AssistantRequest {
	req := openai.AssistantRequest{
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		TopP:        cfg.TopP,
	}
	if cfg.Name != "" {
		name := cfg.Name
		req.Name = &name
	}
	if cfg.Instructions != "" {
		instructions := cfg.Instructions
		req.Instructions = &instructions
	}
	for _, t := range cfg.Tools {
		req.Tools = append(req.Tools, openai.AssistantTool{Type: openai.AssistantToolType(t)})
	}
	if len(cfg.VectorStoreIDs) > 0 {
		req.ToolResources = &openai.AssistantToolResource{
			FileSearch: &openai.AssistantToolFileSearch{VectorStoreIDs: cfg.VectorStoreIDs},
		}
	}
	return req
}

func fromAssistant(a openai.Assistant) *Definition {
	def := &Definition{
		ID:          a.ID,
		Model:       a.Model,
		Temperature: a.Temperature,
		TopP:        a.TopP,
	}
	if a.Name != nil {
		def.Name = *a.Name
	}
	if a.Instructions != nil {
		def.Instructions = *a.Instructions
	}
	for _, t := range a.Tools {
		def.Tools = append(def.Tools, string(t.Type))
	}
	if a.ToolResources != nil && a.ToolResources.FileSearch != nil {
		def.VectorStoreIDs = a.ToolResources.FileSearch.VectorStoreIDs
	}
	return def
}

func fromRun(run openai.Run) *Run {
	r := &Run{
		ID:        run.ID,
		ThreadID:  run.ThreadID,
		AgentID:   run.AssistantID,
		Status:    RunStatus(run.Status),
		CreatedAt: int64(run.CreatedAt),
	}
	if run.LastError != nil {
		r.LastError = run.LastError.Message
	}
	return r
}

// Message bodies are decoded from their wire form so every content and
// annotation type maps onto the tagged variants, including ones the SDK
// leaves untyped.
type wireMessage struct {
	ID        string        `json:"id"`
	Role      string        `json:"role"`
	RunID     *string       `json:"run_id"`
	CreatedAt int64         `json:"created_at"`
	Content   []wireContent `json:"content"`
}

type wireContent struct {
	Type string `json:"type"`
	Text *struct {
		Value       string           `json:"value"`
		Annotations []wireAnnotation `json:"annotations"`
	} `json:"text"`
	ImageFile *struct {
		FileID string `json:"file_id"`
	} `json:"image_file"`
	ImageURL *struct {
		URL string `json:"url"`
	} `json:"image_url"`
}

type wireAnnotation struct {
	Type         string `json:"type"`
	Text         string `json:"text"`
	StartIndex   int    `json:"start_index"`
	EndIndex     int    `json:"end_index"`
	FileCitation *struct {
		FileID string `json:"file_id"`
		Quote  string `json:"quote"`
	} `json:"file_citation"`
	FilePath *struct {
		FileID string `json:"file_id"`
	} `json:"file_path"`
}

func fromMessages(msgs []openai.Message) ([]RemoteMessage, error) {
	data, err := json.Marshal(msgs)
	if err != nil {
		return nil, err
	}
	return decodeMessages(data)
}

func decodeMessages(data []byte) ([]RemoteMessage, error) {
	var wire []wireMessage
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, err
	}
	out := make([]RemoteMessage, 0, len(wire))
	for _, w := range wire {
		msg := RemoteMessage{
			ID:        w.ID,
			Role:      models.Role(w.Role),
			CreatedAt: w.CreatedAt,
		}
		if w.RunID != nil {
			msg.RunID = *w.RunID
		}
		for _, c := range w.Content {
			msg.Content = append(msg.Content, decodeBlock(c))
		}
		out = append(out, msg)
	}
	return out, nil
}

func decodeBlock(c wireContent) ContentBlock {
	switch {
	case c.Type == "text" && c.Text != nil:
		seg := &TextSegment{Value: c.Text.Value}
		for _, a := range c.Text.Annotations {
			seg.Annotations = append(seg.Annotations, decodeAnnotation(a))
		}
		return ContentBlock{Kind: BlockText, Text: seg, RawType: c.Type}
	case c.Type == "image_file" && c.ImageFile != nil:
		return ContentBlock{Kind: BlockImageFile, FileID: c.ImageFile.FileID, RawType: c.Type}
	case c.Type == "image_url" && c.ImageURL != nil:
		return ContentBlock{Kind: BlockImageURL, URL: c.ImageURL.URL, RawType: c.Type}
	default:
		return ContentBlock{Kind: BlockUnknown, RawType: c.Type}
	}
}

func decodeAnnotation(a wireAnnotation) Annotation {
	ann := Annotation{Text: a.Text, StartIndex: a.StartIndex, EndIndex: a.EndIndex}
	switch {
	case a.Type == "file_citation" && a.FileCitation != nil:
		ann.Kind = AnnotationFileCitation
		ann.FileID = a.FileCitation.FileID
		ann.Quote = a.FileCitation.Quote
	case a.Type == "file_path" && a.FilePath != nil:
		ann.Kind = AnnotationFilePath
		ann.FileID = a.FilePath.FileID
	default:
		ann.Kind = AnnotationUnknown
	}
	return ann
}
