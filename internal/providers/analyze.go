package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

const analysisSystemPrompt = "You are an experienced accountant and financial analyst for a small-business " +
	"management suite. You are given a JSON snapshot of the business's current data (clients, tasks, " +
	"invoices, revenue figures) followed by a question. Answer precisely, cite the figures you used, " +
	"and say so explicitly when the data is insufficient to answer."

// BuildAnalysisMessages constructs the fixed two-part analysis prompt: the
// analyst persona as a system message, then the JSON-serialized data snapshot
// and the free-text query as a user message.
func BuildAnalysisMessages(data any, query string) ([]ChatMessage, error) {
	snapshot, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("serialize analysis data: %w", err)
	}

	var user strings.Builder
	user.WriteString("Business data:\n\n")
	user.Write(snapshot)
	user.WriteString("\n\n")
	user.WriteString(query)

	return []ChatMessage{
		{Role: RoleSystem, Content: analysisSystemPrompt},
		{Role: RoleUser, Content: user.String()},
	}, nil
}

// Analyze is the shared AnalyzeData implementation: every adapter builds the
// same prompt and delegates to its own CreateChatCompletion.
func Analyze(ctx context.Context, c Client, model string, data any, query string) (string, error) {
	messages, err := BuildAnalysisMessages(data, query)
	if err != nil {
		return "", err
	}
	result, err := c.CreateChatCompletion(ctx, model, messages, CompletionOptions{})
	if err != nil {
		return "", err
	}
	return result.Content, nil
}
