package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	middleware "github.com/davidekete/ragdesk/internal/api/middlewares"
	"github.com/davidekete/ragdesk/internal/core"
	"github.com/davidekete/ragdesk/internal/core/retrieval"
	"github.com/davidekete/ragdesk/internal/models"
)

const chatSystemPrompt = "You are a helpful assistant answering questions grounded in the user's documents. " +
	"Prefer the provided context; when the context does not cover the question, say so instead of inventing details."

type ChatHandler struct {
	assembler *retrieval.Assembler
	searcher  *retrieval.WebSearcher // nil when web search is not configured
	llm       core.LLMProvider
	log       *zap.SugaredLogger
}

func NewChatHandler(assembler *retrieval.Assembler, searcher *retrieval.WebSearcher, llm core.LLMProvider, log *zap.SugaredLogger) *ChatHandler {
	return &ChatHandler{assembler: assembler, searcher: searcher, llm: llm, log: log}
}

type chatRequest struct {
	Question    string                 `json:"question"`
	Attachments []retrieval.Attachment `json:"attachments,omitempty"`
	WebSearch   bool                   `json:"web_search,omitempty"`
}

type chatResponse struct {
	Answer   string                 `json:"answer"`
	Metadata models.MessageMetadata `json:"metadata"`
}

// Ask answers one chat turn: assemble document context for the user, run an
// optional web search, and generate the reply. Retrieval problems never fail
// the request; the model just gets less context.
func (h *ChatHandler) Ask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := middleware.UserIDFromContext(ctx)
	if !ok {
		writeError(w, http.StatusUnauthorized, "user_id not found in context")
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	res := h.assembler.Assemble(ctx, req.Question, userID, req.Attachments)

	var searchInfo *models.SearchInfo
	if req.WebSearch && h.searcher != nil {
		searchInfo = h.searcher.Search(ctx, req.Question)
	}

	systemPrompt := chatSystemPrompt
	if res.Instruction != "" {
		systemPrompt += "\n\n" + res.Instruction
	}

	answer, err := h.llm.Generate(ctx, systemPrompt, buildUserPrompt(req.Question, res.ContextText, searchInfo))
	if err != nil {
		h.log.Errorw("llm generation failed", "user_id", userID, "error", err)
		writeError(w, http.StatusBadGateway, "could not generate an answer")
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{
		Answer: answer,
		Metadata: models.MessageMetadata{
			ContextSources: res.Sources,
			VectorIDs:      res.VectorIDs,
			SearchInfo:     searchInfo,
		},
	})
}

func buildUserPrompt(question, contextText string, search *models.SearchInfo) string {
	var sb strings.Builder
	if contextText != "" {
		sb.WriteString("Document context:\n")
		sb.WriteString(contextText)
		sb.WriteString("\n\n")
	}
	if search != nil && len(search.Results) > 0 {
		sb.WriteString("Web search results:\n")
		for _, r := range search.Results {
			fmt.Fprintf(&sb, "- %s (%s): %s\n", r.Title, r.Link, r.Snippet)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("Question: ")
	sb.WriteString(question)
	return sb.String()
}
