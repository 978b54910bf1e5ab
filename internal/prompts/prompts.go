// Package prompts renders the text sent to the language model: the first
// SQL generation prompt, the corrective retry prompt and the summary prompt.
package prompts

import (
	"fmt"
	"strings"
	"text/template"
)

// SchemaDescription is the static description of the tickets dataset. The
// schema enricher appends sample values to it.
const SchemaDescription = `Table: tickets (support ticket data)
Columns:
- ticket_id: unique identifier
- ticket_type: e.g. Request, Incident, Change
- priority: e.g. high, medium, low
- category: functional category or routing group (e.g. "IT Support", "Technical Support")
- assigned_to: team or person responsible for the ticket (e.g. "IT Services")
- description: free-text description of the issue

Terminology: In this dataset, "IT tickets" means tickets assigned to IT (filter on assigned_to, e.g. assigned_to = 'IT Services'), not tickets whose category is "IT Support" or "Technical Support". Use assigned_to when the user asks about IT tickets, tickets for IT, etc.
When sample values are provided below, prefer exact values from that list in filters. If no sample values are given, use LIKE 'term%' for short terms.`

const NoConversation = "No previous conversation."

const generationText = `You generate a single read-only SQL (SELECT) query for Amazon Athena.

{{.Schema}}

Rules:
- Use only the table and columns above. Table name: {{.Table}}{{if .Database}} (or {{.Database}}.{{.Table}}){{end}}.
- Return only the SQL query, no explanation. No markdown, no code block wrapper.
- Use valid Athena SQL (e.g. no semicolon required).
- "IT tickets" means tickets assigned to IT: filter on assigned_to (e.g. assigned_to = 'IT Services' or assigned_to LIKE 'IT%'), not on category.
- For other text filters: use exact values from the sample list when provided, or LIKE 'value%' for short terms; use exact = when the exact value is known.
- If the user's question refers to "that", "same", "it", "above", or similar, use the previous conversation context to resolve what they mean.

Previous conversation (for context):
{{.Conversation}}

Current user question: {{.Question}}
`

const retryText = `You generate a single read-only SQL (SELECT) query for Amazon Athena.

{{.Schema}}

Rules:
- Use only the table and columns above. Table name: {{.Table}}{{if .Database}} (or {{.Database}}.{{.Table}}){{end}}.
- Return only the SQL query, no explanation. No markdown, no code block wrapper.
- Use valid Athena SQL (e.g. no semicolon required).

The previous attempt failed. Fix the query based on the error below.

Previous conversation (for context):
{{.Conversation}}

Current user question: {{.Question}}

Previous SQL (failed):
{{.PreviousSQL}}

Error from system:
{{.LastError}}

If the error says "returned 0 rows", check the filter: "IT tickets" means assigned_to (e.g. assigned_to = 'IT Services'), not category. Use LIKE 'value%' or exact values from the sample list as needed. Generate a corrected SQL query only.
`

const summaryText = `The user asked: "{{.Question}}"

Here are the query results (raw rows):

{{.Results}}

Summarize these results in one or two clear sentences in plain language for the user. Do not invent numbers or add information not present in the results.`

var (
	generationTemplate = template.Must(template.New("generation").Parse(generationText))
	retryTemplate      = template.Must(template.New("retry").Parse(retryText))
	summaryTemplate    = template.Must(template.New("summary").Parse(summaryText))
)

// Turn is one answered question as it appears in the conversation context.
type Turn struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type GenerationInput struct {
	Schema       string
	Database     string
	Table        string
	Question     string
	Conversation string
}

type RetryInput struct {
	GenerationInput
	PreviousSQL string
	LastError   string
}

type SummaryInput struct {
	Question string
	Results  string
}

func Generation(in GenerationInput) (string, error) {
	return render(generationTemplate, in.withDefaults())
}

// Retry renders the corrective prompt. An empty PreviousSQL renders as
// "(none)" and an empty LastError as "(unknown)".
func Retry(in RetryInput) (string, error) {
	in.GenerationInput = in.GenerationInput.withDefaults()
	if strings.TrimSpace(in.PreviousSQL) == "" {
		in.PreviousSQL = "(none)"
	}
	if strings.TrimSpace(in.LastError) == "" {
		in.LastError = "(unknown)"
	}
	return render(retryTemplate, in)
}

func Summary(in SummaryInput) (string, error) {
	return render(summaryTemplate, in)
}

// FormatConversation renders turns oldest first, or NoConversation.
func FormatConversation(turns []Turn) string {
	if len(turns) == 0 {
		return NoConversation
	}
	lines := make([]string, 0, len(turns)*2)
	for _, turn := range turns {
		lines = append(lines, "- User: "+turn.Question, "- Assistant: "+turn.Answer)
	}
	return strings.Join(lines, "\n")
}

func (in GenerationInput) withDefaults() GenerationInput {
	if strings.TrimSpace(in.Schema) == "" {
		in.Schema = SchemaDescription
	}
	if strings.TrimSpace(in.Table) == "" {
		in.Table = "tickets"
	}
	if strings.TrimSpace(in.Conversation) == "" {
		in.Conversation = NoConversation
	}
	return in
}

func render(tmpl *template.Template, data any) (string, error) {
	var out strings.Builder
	if err := tmpl.Execute(&out, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", tmpl.Name(), err)
	}
	return out.String(), nil
}
