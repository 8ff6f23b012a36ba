package services

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// recordSchemaMap is the contract every normalized extraction row must satisfy.
var recordSchemaMap = map[string]any{
	"$schema":              "https://json-schema.org/draft/2020-12/schema",
	"type":                 "object",
	"additionalProperties": false,
	"required":             []string{"Subjects"},
	"properties": map[string]any{
		"Seat_No":     map[string]any{"type": "string"},
		"Name":        map[string]any{"type": "string"},
		"Grand_Total": map[string]any{"type": "integer", "minimum": 0},
		"SGPA": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "number", "minimum": 0},
		},
		"CGPA":   map[string]any{"type": "number", "minimum": 0},
		"Remark": map[string]any{"type": "string"},
		"Subjects": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"required":             []string{"Name", "Total", "Grade", "GP"},
				"properties": map[string]any{
					"Name":  map[string]any{"type": "string", "minLength": 1},
					"Total": map[string]any{"type": "integer"},
					"Grade": map[string]any{"type": "string"},
					"GP":    map[string]any{"type": "number"},
				},
			},
		},
	},
}

// planSchemaMap is the allow-list for query plans: anything outside it never runs.
var planSchemaMap = map[string]any{
	"$schema":              "https://json-schema.org/draft/2020-12/schema",
	"type":                 "object",
	"additionalProperties": false,
	"required":             []string{"op"},
	"properties": map[string]any{
		"op": map[string]any{
			"type": "string",
			"enum": []string{string(OpFindStudent), string(OpFindStudents), string(OpCount), string(OpTop)},
		},
		"name":    map[string]any{"type": "string", "maxLength": 200},
		"subject": map[string]any{"type": "string", "maxLength": 200},
		"grade":   map[string]any{"type": "string", "maxLength": 8},
		"remark":  map[string]any{"type": "string", "maxLength": 100},
		"sort_by": map[string]any{"type": "string", "enum": []string{"grand_total", "cgpa"}},
		"order":   map[string]any{"type": "string", "enum": []string{"asc", "desc"}},
		"limit":   map[string]any{"type": "integer", "minimum": 1, "maximum": MaxPlanLimit},
	},
}

var (
	recordSchema = mustCompileSchema("student_record.json", recordSchemaMap)
	planSchema   = mustCompileSchema("query_plan.json", planSchemaMap)
)

func mustCompileSchema(name string, schemaMap map[string]any) *jsonschema.Schema {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		panic(fmt.Sprintf("marshal schema %s: %v", name, err))
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, bytes.NewReader(b)); err != nil {
		panic(fmt.Sprintf("add schema %s: %v", name, err))
	}
	return compiler.MustCompile(name)
}

// validateJSON checks data against schema.
func validateJSON(schema *jsonschema.Schema, data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
