package retrieval

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/davidekete/ragdesk/internal/core"
	"github.com/davidekete/ragdesk/internal/models"
)

// Instruction variants appended to the system prompt depending on how
// confidently retrieval points at one intended document.
const (
	instructionFocus = "The user is asking about the document %q. Base your answer on the provided context from that document and answer confidently."

	instructionThinContext = "The user appears to be asking about the document %q, but little of the retrieved context comes from it. Answer from what is available and note that the document's content may not be fully covered."

	instructionClarify = "The user asked a generic question but it is unclear which document they mean. Ask them to clarify which document they are referring to before answering in depth."
)

type Config struct {
	TopK int
	// RelevanceThreshold is the fraction of retrieved matches that must come
	// from the intended document before the assembler asserts focus on it.
	// Policy, not architecture; tune via config.
	RelevanceThreshold float64
}

// Result is everything the chat layer needs: the context block for prompt
// injection, the instruction variant, and audit metadata.
type Result struct {
	ContextText        string
	Instruction        string
	Sources            []models.ContextSource
	VectorIDs          []string
	IntendedDocumentID string
	RelevanceScore     float64
	IsGenericQuery     bool
}

// Assembler builds retrieval-augmented context for a question: embed, query
// the vector store scoped to the user, format, and decide how strongly the
// answer should lean on a specific document.
type Assembler struct {
	embedder core.EmbeddingProvider
	store    core.VectorStore
	intents  IntentClassifier
	cfg      Config
	log      *zap.SugaredLogger
}

func NewAssembler(embedder core.EmbeddingProvider, store core.VectorStore, intents IntentClassifier, cfg Config, log *zap.SugaredLogger) *Assembler {
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if cfg.RelevanceThreshold <= 0 {
		cfg.RelevanceThreshold = 0.5
	}
	return &Assembler{embedder: embedder, store: store, intents: intents, cfg: cfg, log: log}
}

// Assemble never fails the chat request: embedding or query errors degrade
// to an empty context so the model can still answer from general knowledge.
func (a *Assembler) Assemble(ctx context.Context, question, userID string, attachments []Attachment) Result {
	res := Result{IsGenericQuery: a.intents.IsGeneric(question)}

	if res.IsGenericQuery && len(attachments) == 1 {
		res.IntendedDocumentID = IntendedDocumentID(attachments[0])
	}

	vecs, err := a.embedder.EmbedTexts(ctx, []string{question})
	if err != nil || len(vecs) == 0 {
		a.log.Warnw("question embedding failed, answering without context",
			"user_id", userID, "error", err)
		res.Instruction = a.instructionFor(res, nil)
		return res
	}

	matches, err := a.store.Query(ctx, vecs[0], a.cfg.TopK, models.VectorFilter{UserID: userID})
	if err != nil {
		a.log.Warnw("vector query failed, answering without context",
			"user_id", userID, "error", err)
		res.Instruction = a.instructionFor(res, nil)
		return res
	}

	blocks := make([]string, 0, len(matches))
	for _, m := range matches {
		blocks = append(blocks, fmt.Sprintf("[SOURCE: %s] (relevance: %.2f)\n%s",
			m.Metadata.Source, m.Score, m.Metadata.Text))
		res.Sources = append(res.Sources, models.ContextSource{
			Source:    m.Metadata.Source,
			Content:   m.Metadata.Text,
			Relevance: m.Score,
		})
		res.VectorIDs = append(res.VectorIDs, m.ID)
	}
	res.ContextText = strings.Join(blocks, "\n\n")

	if res.IntendedDocumentID != "" {
		res.RelevanceScore = documentFraction(matches, res.IntendedDocumentID)
	}
	res.Instruction = a.instructionFor(res, matches)
	return res
}

func (a *Assembler) instructionFor(res Result, matches []models.VectorMatch) string {
	name := res.IntendedDocumentID
	for _, m := range matches {
		if m.Metadata.DocumentID == res.IntendedDocumentID && m.Metadata.Source != "" {
			name = m.Metadata.Source
			break
		}
	}
	return SelectInstruction(res.IsGenericQuery, res.IntendedDocumentID, name, res.RelevanceScore, a.cfg.RelevanceThreshold)
}

// SelectInstruction is the deterministic decision table mapping
// (isGenericQuery, hasIntendedDocument, relevanceScore) onto one of three
// instruction variants. Exported so the table itself is testable across
// thresholds.
func SelectInstruction(isGeneric bool, intendedDocID, displayName string, relevance, threshold float64) string {
	if !isGeneric {
		return ""
	}
	if intendedDocID == "" {
		return instructionClarify
	}
	if relevance >= threshold {
		return fmt.Sprintf(instructionFocus, displayName)
	}
	return fmt.Sprintf(instructionThinContext, displayName)
}

// documentFraction is the share of matches whose metadata carries docID.
func documentFraction(matches []models.VectorMatch, docID string) float64 {
	if len(matches) == 0 {
		return 0
	}
	n := 0
	for _, m := range matches {
		if m.Metadata.DocumentID == docID {
			n++
		}
	}
	return float64(n) / float64(len(matches))
}
