package analyzer

import (
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"contracts-backend/internal/analysis"
)

// Result schemas per analysis type. The LLM is prompted to produce these
// shapes; anything that fails validation is a permanent failure.
var schemaSources = map[string]string{
	analysis.TypeBasic: `{
  "type": "object",
  "required": ["summary", "confidenceScore", "parties"],
  "properties": {
    "summary": {"type": "string", "minLength": 1},
    "confidenceScore": {"type": "number", "minimum": 0, "maximum": 1},
    "parties": {"type": "array", "items": {"type": "string"}},
    "effectiveDate": {"type": ["string", "null"]},
    "termMonths": {"type": ["number", "null"]}
  }
}`,

	analysis.TypeComprehensive: `{
  "type": "object",
  "required": ["summary", "confidenceScore", "parties", "obligations"],
  "properties": {
    "summary": {"type": "string", "minLength": 1},
    "confidenceScore": {"type": "number", "minimum": 0, "maximum": 1},
    "parties": {"type": "array", "items": {"type": "string"}},
    "obligations": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["party", "description"],
        "properties": {
          "party": {"type": "string"},
          "description": {"type": "string"}
        }
      }
    },
    "paymentTerms": {"type": ["string", "null"]},
    "terminationConditions": {"type": "array", "items": {"type": "string"}},
    "governingLaw": {"type": ["string", "null"]},
    "renewalTerms": {"type": ["string", "null"]}
  }
}`,

	analysis.TypeRiskAssessment: `{
  "type": "object",
  "required": ["summary", "confidenceScore", "overallRisk", "risks"],
  "properties": {
    "summary": {"type": "string", "minLength": 1},
    "confidenceScore": {"type": "number", "minimum": 0, "maximum": 1},
    "overallRisk": {"enum": ["low", "medium", "high"]},
    "risks": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["clause", "severity", "rationale"],
        "properties": {
          "clause": {"type": "string"},
          "severity": {"enum": ["low", "medium", "high"]},
          "rationale": {"type": "string"}
        }
      }
    },
    "missingProtections": {"type": "array", "items": {"type": "string"}}
  }
}`,

	analysis.TypeClauseExtraction: `{
  "type": "object",
  "required": ["summary", "confidenceScore", "clauses"],
  "properties": {
    "summary": {"type": "string", "minLength": 1},
    "confidenceScore": {"type": "number", "minimum": 0, "maximum": 1},
    "clauses": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["type", "text"],
        "properties": {
          "type": {"type": "string"},
          "text": {"type": "string"},
          "section": {"type": ["string", "null"]}
        }
      }
    }
  }
}`,
}

var resultSchemas = compileSchemas()

func compileSchemas() map[string]*jsonschema.Schema {
	compiled := make(map[string]*jsonschema.Schema, len(schemaSources))
	for analysisType, source := range schemaSources {
		compiler := jsonschema.NewCompiler()
		name := analysisType + ".json"
		if err := compiler.AddResource(name, strings.NewReader(source)); err != nil {
			panic(err)
		}
		compiled[analysisType] = compiler.MustCompile(name)
	}
	return compiled
}
