package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mverde/ledgerpilot/internal/database/repository"
	"github.com/mverde/ledgerpilot/internal/llm"
	"github.com/mverde/ledgerpilot/internal/tool"
)

// IngestInput is raw user input: free text, or document bytes with a media
// type. When both are present the text rides along as a caption.
type IngestInput struct {
	Text     string
	File     []byte
	MIMEType string
}

// Orchestrator turns unstructured input into an action draft via the LLM.
// The exchange is a two-stage pipeline: when the first pass requests a
// read-only tool, the orchestrator executes it synchronously and issues
// exactly one more pass with the results — the model cannot pull data itself.
type Orchestrator struct {
	Entities *repository.EntityRepo
	Registry *tool.Registry
	Provider llm.Provider
	Logger   *slog.Logger
	Clock    func() time.Time
}

const maxDraftTokens = 2048

// Handle never propagates upstream failures: credential problems, non-2xx
// responses and unparsable JSON all degrade to an error-carrying draft so
// the caller can show a message instead of crashing.
func (o *Orchestrator) Handle(ctx context.Context, ownerID string, in IngestInput) Draft {
	system, err := o.buildSystemPrompt(ctx, ownerID)
	if err != nil {
		return errorDraft(fmt.Sprintf("build context: %v", err))
	}

	userText := in.Text
	if userText == "" && len(in.File) > 0 {
		userText = "Extract the financial information from the attached document."
	}
	req := llm.Request{
		System:    system,
		Messages:  []llm.Message{{Role: "user", Text: userText}},
		MaxTokens: maxDraftTokens,
	}
	if len(in.File) > 0 {
		req.Media = &llm.MediaBlob{MIMEType: in.MIMEType, Data: in.File}
	}

	raw, err := o.Provider.Generate(ctx, req)
	if err != nil {
		o.logger().Warn("llm first pass failed", "owner", ownerID, "error", err)
		return errorDraft(fmt.Sprintf("llm: %v", err))
	}
	var draft Draft
	if err := llm.DecodeJSON(raw, &draft); err != nil {
		o.logger().Warn("llm reply unparsable", "owner", ownerID, "error", err)
		return errorDraft(fmt.Sprintf("parse draft: %v", err))
	}

	// Stage two: awaiting-tool-results → final. Bounded to one extra pass.
	toolResults := o.runReadOnlyActions(ctx, ownerID, draft.Actions)
	if len(toolResults) == 0 {
		return draft
	}
	resultsJSON, err := json.Marshal(toolResults)
	if err != nil {
		return draft
	}
	second := llm.Request{
		System: system,
		Messages: []llm.Message{
			{Role: "user", Text: userText},
			{Role: "model", Text: raw},
			{Role: "user", Text: "Tool results: " + string(resultsJSON) +
				"\nProduce the final JSON object. Answer the user's question in the analysis field using these results, and preserve every action that is not a tool query."},
		},
		MaxTokens: maxDraftTokens,
	}
	finalRaw, err := o.Provider.Generate(ctx, second)
	if err != nil {
		o.logger().Warn("llm second pass failed", "owner", ownerID, "error", err)
		draft.Actions = o.stripReadOnly(draft.Actions)
		return draft
	}
	var final Draft
	if err := llm.DecodeJSON(finalRaw, &final); err != nil {
		draft.Actions = o.stripReadOnly(draft.Actions)
		return draft
	}
	final.Actions = o.stripReadOnly(final.Actions)
	return final
}

// runReadOnlyActions executes analytics-tool requests synchronously and
// returns their results keyed by tool name. Write-intent actions pass
// through untouched.
func (o *Orchestrator) runReadOnlyActions(ctx context.Context, ownerID string, actions []Action) map[string]any {
	results := make(map[string]any)
	for _, a := range actions {
		t, err := o.Registry.Get(a.Tool)
		if err != nil || !t.ReadOnly() {
			continue
		}
		out, err := t.Execute(ctx, ownerID, a.Params)
		if err != nil {
			results[a.Tool] = map[string]any{"error": err.Error()}
			continue
		}
		results[a.Tool] = out
	}
	return results
}

// stripReadOnly drops already-executed tool queries from a final draft.
func (o *Orchestrator) stripReadOnly(actions []Action) []Action {
	out := make([]Action, 0, len(actions))
	for _, a := range actions {
		if t, err := o.Registry.Get(a.Tool); err == nil && t.ReadOnly() {
			continue
		}
		out = append(out, a)
	}
	return out
}

// entityRecord is the compact per-entity context record.
type entityRecord struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

func (o *Orchestrator) buildSystemPrompt(ctx context.Context, ownerID string) (string, error) {
	ents, err := o.Entities.ListActive(ctx, ownerID)
	if err != nil {
		return "", err
	}
	records := make([]entityRecord, 0, len(ents))
	for _, e := range ents {
		records = append(records, entityRecord{ID: e.ID, Name: e.Name, Category: e.Category})
	}
	entityMap, err := json.Marshal(records)
	if err != nil {
		return "", err
	}
	catalog, err := json.Marshal(o.Registry.DescribeAll())
	if err != nil {
		return "", err
	}

	now := o.Clock
	if now == nil {
		now = time.Now
	}
	today := now().UTC().Format(repository.DateOnly)

	return fmt.Sprintf(`You are the ingestion engine of a personal life and finance ledger.
Turn the user's message or document into structured actions.

Available tools:
%s

The user's known entities:
%s

Today's date is %s.

Rules:
- Prefer the UUID of a known entity over creating a new one.
- When the user asks about history or past spending, call query_events instead of guessing.
- To reference an entity created earlier in this same plan, use "new:<name>".
- Other accepted references: a UUID, "find-by-name:<text>", "find-first-vehicle".
- Amounts are signed: expenses and outflows are negative.
- Multiple chained actions in one plan are supported and encouraged.
- Reply with ONLY one JSON object: {"actions": [{"tool": ..., "params": {...}}], "analysis": "one natural-language sentence for the user", "clarification": null or "a question when something essential is missing"}.
- Always fill the analysis field.`, catalog, entityMap, today), nil
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}
