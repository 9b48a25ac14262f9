package memory

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/hindsight/pkg/adapter"
	"github.com/m-mizutani/hindsight/pkg/model"
	"github.com/m-mizutani/hindsight/pkg/utils/llmjson"
	"github.com/m-mizutani/hindsight/pkg/utils/logging"
	"google.golang.org/genai"
)

//go:embed prompt/extract.md
var extractPromptRaw string

var extractPromptTmpl = template.Must(template.New("extract").Parse(extractPromptRaw))

type extractPromptData struct {
	Context  string
	Document string
}

// RetainDocument is one document submitted for ingestion. DocumentID is
// the caller's idempotence key; when empty a random one is assigned, which
// makes the submission non-idempotent.
type RetainDocument struct {
	Content    string `json:"content"`
	DocumentID string `json:"document_id,omitempty"`
	Context    string `json:"context,omitempty"`
}

// extractedFact is the extractor model's per-fact output.
type extractedFact struct {
	Text          string   `json:"text"`
	Type          string   `json:"type"`
	Entities      []string `json:"entities"`
	OccurredStart string   `json:"occurred_start"`
	OccurredEnd   string   `json:"occurred_end"`
}

// Retain ingests documents for an agent: each is distilled into atomic
// facts, gated through the admission policy, embedded, and stored. Facts
// derive deterministic IDs from (agent, document, text), so re-submitting
// a batch with the same document IDs cannot duplicate memory.
func (uc *UseCase) Retain(ctx context.Context, id model.AgentID, documents []RetainDocument) ([]*model.MemoryFact, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	if len(documents) == 0 {
		return nil, goerr.Wrap(model.ErrValidation, "no documents to retain", goerr.V("agent_id", id))
	}
	for i, doc := range documents {
		if strings.TrimSpace(doc.Content) == "" {
			return nil, goerr.Wrap(model.ErrValidation, "document content is empty",
				goerr.V("agent_id", id), goerr.V("index", i))
		}
	}

	// Ensure the tenant exists before any fact is written
	if _, err := uc.profiles.Get(ctx, id); err != nil {
		return nil, err
	}

	var retained []*model.MemoryFact
	for _, doc := range documents {
		documentID := doc.DocumentID
		if documentID == "" {
			documentID = uuid.NewString()
		}

		if uc.storage != nil {
			if err := uc.archiveDocument(ctx, id, documentID, doc.Content); err != nil {
				return nil, err
			}
		}

		facts, err := uc.extractFacts(ctx, id, documentID, doc)
		if err != nil {
			return nil, err
		}
		retained = append(retained, facts...)
	}

	if len(retained) == 0 {
		return nil, nil
	}

	if err := uc.repo.PutFacts(ctx, retained); err != nil {
		return nil, goerr.Wrap(err, "failed to store facts", goerr.V("agent_id", id))
	}

	logging.From(ctx).Info("retained memory facts",
		"agent_id", id, "documents", len(documents), "facts", len(retained))
	return retained, nil
}

func (uc *UseCase) extractFacts(ctx context.Context, id model.AgentID, documentID string, doc RetainDocument) ([]*model.MemoryFact, error) {
	var buf bytes.Buffer
	if err := extractPromptTmpl.Execute(&buf, extractPromptData{
		Context:  doc.Context,
		Document: doc.Content,
	}); err != nil {
		return nil, goerr.Wrap(err, "failed to render extraction prompt")
	}

	thinkingBudget := int32(0)
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText("You are a memory extraction engine.", ""),
		ThinkingConfig: &genai.ThinkingConfig{
			IncludeThoughts: false,
			ThinkingBudget:  &thinkingBudget,
		},
	}

	contents := []*genai.Content{genai.NewContentFromText(buf.String(), genai.RoleUser)}
	resp, err := uc.gemini.GenerateContent(ctx, contents, config)
	if err != nil {
		return nil, goerr.Wrap(model.ErrExternalService, "fact extraction failed",
			goerr.V("document_id", documentID), goerr.V("cause", err.Error()))
	}

	text := adapter.ResponseText(resp)
	var extracted []extractedFact
	if err := json.Unmarshal([]byte(llmjson.Extract(text)), &extracted); err != nil {
		return nil, goerr.Wrap(err, "failed to parse extracted facts",
			goerr.V("document_id", documentID), goerr.V("response", text))
	}

	now := uc.now()
	var facts []*model.MemoryFact
	for _, e := range extracted {
		factText := strings.TrimSpace(e.Text)
		if factText == "" {
			continue
		}

		fact := &model.MemoryFact{
			ID:            model.NewFactID(id, documentID, factText),
			AgentID:       id,
			Text:          factText,
			Type:          model.ParseFactType(e.Type),
			OccurredStart: parseFactTime(e.OccurredStart),
			OccurredEnd:   parseFactTime(e.OccurredEnd),
			Entities:      namedEntities(factText, e.Entities),
			Context:       doc.Context,
			DocumentID:    documentID,
			CreatedAt:     now,
		}

		admitted, err := uc.policy.Admit(ctx, fact)
		if err != nil {
			return nil, err
		}
		if !admitted {
			continue
		}

		embedding, err := uc.embed(ctx, factText)
		if err != nil {
			return nil, err
		}
		fact.Embedding = embedding

		facts = append(facts, fact)
	}
	return facts, nil
}

func (uc *UseCase) embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := uc.gemini.Embedding(ctx, text)
	if err != nil {
		return nil, goerr.Wrap(model.ErrExternalService, "embedding failed", goerr.V("cause", err.Error()))
	}
	vec := adapter.EmbeddingVector(resp)
	if len(vec) == 0 {
		return nil, goerr.Wrap(model.ErrExternalService, "empty embedding response")
	}
	return vec, nil
}

func (uc *UseCase) archiveDocument(ctx context.Context, id model.AgentID, documentID, content string) error {
	key := fmt.Sprintf("agents/%s/documents/%s", id, documentID)
	w, err := uc.storage.Put(ctx, key)
	if err != nil {
		return goerr.Wrap(err, "failed to open archive writer", goerr.V("key", key))
	}
	if _, err := w.Write([]byte(content)); err != nil {
		w.Close()
		return goerr.Wrap(err, "failed to archive document", goerr.V("key", key))
	}
	if err := w.Close(); err != nil {
		return goerr.Wrap(err, "failed to finalize archive", goerr.V("key", key))
	}
	return nil
}

func parseFactTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	return &t
}
