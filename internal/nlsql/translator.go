// Package nlsql turns a natural-language question into a single read-only SQL
// statement via the language model, executes it, and reports the outcome as a
// string-shaped result. Failures never cross this boundary as errors.
package nlsql

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/migrachat/migrachat/internal/llm"
	"github.com/migrachat/migrachat/internal/schema"
)

// translationTemperature pins SQL generation to zero temperature so repeated
// identical questions bias toward the same statement.
const translationTemperature = 0

// QueryResult is the string-shaped outcome of translate+execute. Raw SQL is
// deliberately not part of it; callers only ever see result text.
type QueryResult struct {
	Text   string
	Failed bool
	Cause  string
}

// Payload returns the text handed to the synthesizer: the query result, or a
// readable error sentence when translation or execution failed.
func (r QueryResult) Payload() string {
	if r.Failed {
		return fmt.Sprintf("Error retrieving data: %s", r.Cause)
	}
	return r.Text
}

// Executor runs a read-only statement and renders its result as text.
// *schema.Connector satisfies it.
type Executor interface {
	QueryText(ctx context.Context, sqlText string) (string, error)
}

type Translator struct {
	client     llm.Client
	executor   Executor
	schemaText string
	logger     *slog.Logger
}

func NewTranslator(client llm.Client, executor Executor, schemaContext schema.Context, logger *slog.Logger) *Translator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Translator{
		client:     client,
		executor:   executor,
		schemaText: schemaContext.Render(),
		logger:     logger,
	}
}

func (t *Translator) Translate(ctx context.Context, question string) QueryResult {
	resp, err := t.client.Complete(ctx, llm.Request{
		Messages:    buildMessages(t.schemaText, question),
		Temperature: translationTemperature,
	})
	if err != nil {
		return failed(fmt.Sprintf("generating SQL failed: %v", err))
	}

	sqlText := stripMarkdownSQL(resp.Content)
	if strings.TrimSpace(sqlText) == "" {
		return failed("the model returned an empty SQL statement")
	}
	if !schema.IsReadOnlySQL(sqlText) {
		return failed("the generated statement was not a read-only query")
	}

	t.logger.DebugContext(ctx, "executing generated sql", slog.String("sql", sqlText))

	text, err := t.executor.QueryText(ctx, sqlText)
	if err != nil {
		return failed(fmt.Sprintf("executing the query failed: %v", err))
	}
	return QueryResult{Text: text}
}

func failed(cause string) QueryResult {
	return QueryResult{Failed: true, Cause: cause}
}

func buildMessages(schemaText, question string) []llm.Message {
	system := "You translate questions about student migration records into SQL. " +
		"Produce exactly one MySQL SELECT statement over the described schema. " +
		"Use only the listed tables and columns. Return ONLY SQL. No markdown, no explanation."
	user := fmt.Sprintf("Schema:\n%s\nQuestion:\n%s", schemaText, strings.TrimSpace(question))
	return []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: user},
	}
}

func stripMarkdownSQL(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```sql")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(trimmed, "```")
		return strings.TrimSpace(trimmed)
	}
	return trimmed
}
