package openai

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Message represents an OpenAI chat message.
type Message struct {
	Role    string
	Content string
}

const (
	systemPrompt        = "You are a contract analysis engine. Respond with JSON only. No markdown. Never omit keys. Output must match the schema exactly."
	systemPromptFixJSON = "You are a JSON repair tool. Return only valid JSON that matches the schema exactly."
)

// Per-type developer instructions. Every template demands the shared result
// envelope: summary, confidenceScore, and a type-specific findings object.
var promptTemplates = map[string]string{
	"basic": `Analyze the contract and return JSON with keys:
"summary" (string, <= 3 sentences), "confidenceScore" (number 0..1),
"parties" (array of strings), "effectiveDate" (string or null),
"termMonths" (number or null).`,

	"comprehensive": `Perform a full contract review and return JSON with keys:
"summary" (string), "confidenceScore" (number 0..1),
"parties" (array of strings), "obligations" (array of {party, description}),
"paymentTerms" (string or null), "terminationConditions" (array of strings),
"governingLaw" (string or null), "renewalTerms" (string or null).`,

	"risk-assessment": `Assess contractual risk and return JSON with keys:
"summary" (string), "confidenceScore" (number 0..1),
"overallRisk" (one of "low","medium","high"),
"risks" (array of {clause, severity, rationale}),
"missingProtections" (array of strings).`,

	"clause-extraction": `Extract clauses and return JSON with keys:
"summary" (string), "confidenceScore" (number 0..1),
"clauses" (array of {type, text, section}).`,
}

// BuildPrompt creates the chat messages for a contract analysis request.
// Unknown analysis types fall back to the basic template.
func BuildPrompt(analysisType, contractText string, customParameters map[string]any) []Message {
	template, ok := promptTemplates[strings.TrimSpace(analysisType)]
	if !ok {
		template = promptTemplates["basic"]
	}

	return []Message{
		{Role: "system", Content: systemPrompt},
		{Role: "developer", Content: template},
		{Role: "user", Content: buildUserPrompt(contractText, customParameters)},
	}
}

func buildFixPrompt(analysisType string, raw []byte) []Message {
	template, ok := promptTemplates[strings.TrimSpace(analysisType)]
	if !ok {
		template = promptTemplates["basic"]
	}
	return []Message{
		{Role: "system", Content: systemPromptFixJSON},
		{Role: "developer", Content: template},
		{Role: "user", Content: fixUserPrompt(raw)},
	}
}

func buildUserPrompt(contractText string, customParameters map[string]any) string {
	params := "N/A"
	if len(customParameters) > 0 {
		if encoded, err := json.Marshal(customParameters); err == nil {
			params = string(encoded)
		}
	}
	return fmt.Sprintf("Contract Text:\n%s\n\nAdditional Parameters:\n%s", contractText, params)
}

func fixUserPrompt(raw []byte) string {
	return fmt.Sprintf("Fix this JSON to match the schema exactly. Output JSON only:\n%s", string(raw))
}
