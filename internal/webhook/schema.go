package webhook

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonschema"
)

// envelopeSchema is the structural contract for the provider envelope. It
// only pins the envelope shape and the subject id; profile fields are
// provider-controlled and validated semantically downstream.
const envelopeSchema = `{
  "type": "object",
  "required": ["type", "data"],
  "properties": {
    "type": { "type": "string", "minLength": 1 },
    "data": {
      "type": "object",
      "required": ["id"],
      "properties": {
        "id": { "type": "string", "minLength": 1 }
      }
    }
  }
}`

var compiledEnvelopeSchema = mustCompileSchema(envelopeSchema)

func mustCompileSchema(raw string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	schema, err := compiler.Compile([]byte(raw))
	if err != nil {
		panic(fmt.Sprintf("invalid envelope schema: %v", err))
	}
	return schema
}

// validateEnvelope checks the raw body against the envelope schema before
// any typed decoding happens.
func validateEnvelope(body []byte) error {
	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return fmt.Errorf("body is not a JSON object: %w", err)
	}

	result := compiledEnvelopeSchema.Validate(payload)
	if !result.IsValid() {
		var messages []string
		for field, evalErr := range result.Errors {
			messages = append(messages, fmt.Sprintf("%s: %s", field, evalErr.Error()))
		}
		return fmt.Errorf("envelope validation failed: %s", strings.Join(messages, "; "))
	}
	return nil
}
