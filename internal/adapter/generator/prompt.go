package generator

import (
	"fmt"
	"strings"
)

const systemPrompt = "You are an expert SQL generator for a SQLite database. " +
	"Use ONLY the tables and columns listed in the schema. " +
	"Output ONLY a single SELECT query with no explanation and no code fences. " +
	"Use JOINs where needed and never invent tables or columns."

// userPrompt combines the schema hint with the question.
func userPrompt(schemaHint, question string) string {
	var b strings.Builder
	if hint := strings.TrimSpace(schemaHint); hint != "" {
		fmt.Fprintf(&b, "Schema:\n%s\n\n", hint)
	}
	fmt.Fprintf(&b, "Question:\n%s\n\nSQL:", strings.TrimSpace(question))
	return b.String()
}

// stripMarkdownSQL removes markdown code fences the model may wrap around SQL.
func stripMarkdownSQL(value string) string {
	trimmed := strings.TrimSpace(value)
	if !strings.Contains(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.ReplaceAll(trimmed, "```sql", "")
	trimmed = strings.ReplaceAll(trimmed, "```SQL", "")
	trimmed = strings.ReplaceAll(trimmed, "```", "")
	return strings.TrimSpace(trimmed)
}
