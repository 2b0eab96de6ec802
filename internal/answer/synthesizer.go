// Package answer turns a query result back into a conversational reply. The
// persona and the single worked example are fixed; grounding in the supplied
// result is a prompting contract, not a runtime check.
package answer

import (
	"context"
	"fmt"
	"strings"

	"github.com/migrachat/migrachat/internal/llm"
)

const systemPrompt = `You are a student migration data expert and analyst.
Your task is to answer user questions using information from a SQL database about global student migration patterns.
Base your answer only on the given context and provide insights when possible.

Guidelines:
- Be conversational and helpful
- Provide specific numbers when available
- Offer context about trends when relevant
- If data is limited, acknowledge it
- Use emojis sparingly but appropriately

Example:
Input: How many students went to Canada?
Context: There are 120 students in the database who went to Canada.
Output: Based on the data, 120 students have migrated to Canada for higher studies. Canada continues to be a popular destination for international students!`

const synthesisTemperature = 0

type Synthesizer struct {
	client    llm.Client
	maxTokens int
}

func NewSynthesizer(client llm.Client, maxTokens int) *Synthesizer {
	return &Synthesizer{client: client, maxTokens: maxTokens}
}

// Synthesize sends the two-message conversation and returns the completion
// verbatim. The caller decides what to do with an error (see Fallback).
func (s *Synthesizer) Synthesize(ctx context.Context, question, resultText string) (string, error) {
	resp, err := s.client.Complete(ctx, llm.Request{
		Messages:    buildMessages(question, resultText),
		Temperature: synthesisTemperature,
		MaxTokens:   s.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("synthesize answer: %w", err)
	}
	return resp.Content, nil
}

// Fallback is the fixed apologetic answer used when synthesis itself fails.
func Fallback(err error) string {
	return fmt.Sprintf("Sorry, I encountered an error while processing your question: %v", err)
}

func buildMessages(question, resultText string) []llm.Message {
	user := fmt.Sprintf("Input:\n%s\n\nContext:\n%s\n\nOutput:\n", strings.TrimSpace(question), resultText)
	return []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleUser, Content: user},
	}
}
