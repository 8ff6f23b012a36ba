package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"github.com/Lllllllleong/gazetteflow/internal/gcp"
	"github.com/Lllllllleong/gazetteflow/internal/store"
)

const (
	RefusalAnswer = "I couldn't generate a safe query for that."
	NoMatchAnswer = "No matching records found in the database."
	errorAnswer   = "Error processing that request: "
)

// ChatService answers natural-language questions about the stored results. The
// planner turns a question into a QueryPlan, the plan runs against the store and
// the answer model phrases the result.
type ChatService struct {
	planner  Generator
	answerer Generator
	store    store.Store
	logger   *slog.Logger
}

func NewChatService(planner, answerer Generator, st store.Store, logger *slog.Logger) (*ChatService, error) {
	if planner == nil || answerer == nil || st == nil {
		return nil, fmt.Errorf("chat service needs a planner, an answerer and a store")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatService{planner: planner, answerer: answerer, store: st, logger: logger}, nil
}

// Answer never fails: every outcome, including errors, is phrased as an answer.
func (c *ChatService) Answer(ctx context.Context, question string) string {
	question = strings.TrimSpace(question)
	logCtx := c.logger.With("question", truncate(question, 200))
	if question == "" {
		return RefusalAnswer
	}

	planText, err := c.planner.Generate(ctx, genai.Text(fmt.Sprintf(gcp.PlannerUserPrompt, question)))
	if err != nil {
		logCtx.Error("Planner call failed", "error", err)
		return errorAnswer + err.Error()
	}

	plan, err := ParsePlan(planText)
	if err != nil {
		logCtx.Warn("Rejected query plan.", "plan", truncate(planText, 300), "error", err)
		return RefusalAnswer
	}
	logCtx.Info("Running query plan.", "op", plan.Op, "name", plan.Name, "subject", plan.Subject,
		"grade", plan.Grade, "remark", plan.Remark, "sortBy", plan.SortBy, "limit", plan.Limit)

	result, err := plan.Execute(ctx, c.store)
	if err != nil {
		if errors.Is(err, ErrUnsafeQuery) {
			return RefusalAnswer
		}
		logCtx.Error("Query plan failed", "error", err)
		return errorAnswer + err.Error()
	}
	if result.Empty() {
		return NoMatchAnswer
	}

	data, err := json.Marshal(result)
	if err != nil {
		return errorAnswer + err.Error()
	}
	answer, err := c.answerer.Generate(ctx, genai.Text(fmt.Sprintf(gcp.AnswerUserPrompt, question, data)))
	if err != nil {
		logCtx.Error("Answer call failed", "error", err)
		return errorAnswer + err.Error()
	}
	return answer
}
