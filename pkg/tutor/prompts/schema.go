package prompts

import (
	"encoding/json"
	"fmt"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/lyralabs/lyra/pkg/docstore"
)

// documentSchema constrains the tutor-settings documents persisted in the
// docstore, where writes may arrive from any client.
const documentSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["subject", "system"],
  "properties": {
    "subject": {"type": "string", "minLength": 1},
    "system":  {"type": "string", "minLength": 1},
    "tone":    {"type": "string"},
    "version": {"type": "integer", "minimum": 1},
    "meta":    {"type": "object", "additionalProperties": {"type": "string"}}
  },
  "additionalProperties": false
}`

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		var doc any
		if err := json.Unmarshal([]byte(documentSchema), &doc); err != nil {
			schemaErr = err
			return
		}
		if err := c.AddResource("mem://tutor-settings.json", doc); err != nil {
			schemaErr = err
			return
		}
		schema, schemaErr = c.Compile("mem://tutor-settings.json")
	})
	return schema, schemaErr
}

// ValidateDocument checks a settings field map against the document schema.
func ValidateDocument(fields map[string]any) error {
	sch, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("prompts: compile schema: %w", err)
	}
	// Round-trip to generic JSON values so typed ints and nested maps
	// normalize the way the validator expects.
	b, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("prompts: encode settings: %w", err)
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("prompts: decode settings: %w", err)
	}
	if err := sch.Validate(v); err != nil {
		return fmt.Errorf("prompts: invalid settings document: %w", err)
	}
	return nil
}

// Fields renders settings as a docstore field map.
func (s Settings) Fields() map[string]any {
	fields := map[string]any{
		"subject": s.Subject,
		"system":  s.System,
	}
	if s.Tone != "" {
		fields["tone"] = s.Tone
	}
	if s.Version > 0 {
		fields["version"] = s.Version
	}
	if len(s.Meta) > 0 {
		meta := make(map[string]any, len(s.Meta))
		for k, v := range s.Meta {
			meta[k] = v
		}
		fields["meta"] = meta
	}
	return fields
}

// FromDocument decodes a settings document, validating it first.
func FromDocument(doc docstore.Document) (Settings, error) {
	if err := ValidateDocument(doc.Fields); err != nil {
		return Settings{}, err
	}
	s := Settings{}
	s.Subject, _ = doc.Fields["subject"].(string)
	s.System, _ = doc.Fields["system"].(string)
	s.Tone, _ = doc.Fields["tone"].(string)
	switch v := doc.Fields["version"].(type) {
	case int:
		s.Version = v
	case int64:
		s.Version = int(v)
	case float64:
		s.Version = int(v)
	}
	if meta, ok := doc.Fields["meta"].(map[string]any); ok {
		s.Meta = make(map[string]string, len(meta))
		for k, v := range meta {
			if sv, ok := v.(string); ok {
				s.Meta[k] = sv
			}
		}
	}
	return s, nil
}
