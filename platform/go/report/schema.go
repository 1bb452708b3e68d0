package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Schema returns the JSON Schema that a fetched batch of t must satisfy:
// an array of objects carrying exactly the declared columns.
func Schema(t Type) ([]byte, error) {
	d := t.Descriptor()
	props := make(map[string]any, len(d.Columns))
	required := make([]string, 0, len(d.Columns))
	for _, c := range d.Columns {
		props[c.Name] = columnSchema(c)
		required = append(required, c.Name)
	}
	doc := map[string]any{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"title":   t.String(),
		"type":    "array",
		"items": map[string]any{
			"type":                 "object",
			"properties":           props,
			"required":             required,
			"additionalProperties": false,
		},
	}
	return json.Marshal(doc)
}

func columnSchema(c Column) map[string]any {
	var typ string
	out := map[string]any{}
	switch c.Kind {
	case KindInt:
		typ = "integer"
	case KindFloat:
		typ = "number"
	case KindTime:
		typ = "string"
		out["format"] = "date-time"
	default:
		typ = "string"
	}
	if c.Key && c.Kind == KindText {
		out["minLength"] = 1
	}
	if c.Nullable && c.Kind == KindTime {
		out["type"] = []string{typ, "null"}
	} else {
		out["type"] = typ
	}
	return out
}

// Validator checks fetched rows against per-type schemas compiled once.
type Validator struct {
	mu    sync.RWMutex
	cache map[Type]*jsonschema.Schema
}

// NewValidator returns a validator with an empty schema cache.
func NewValidator() *Validator {
	return &Validator{cache: make(map[Type]*jsonschema.Schema)}
}

// Validate ensures rows match t's schema.
func (v *Validator) Validate(t Type, rows []Row) error {
	compiled, err := v.getOrCompile(t)
	if err != nil {
		return err
	}

	if rows == nil {
		rows = []Row{}
	}
	payload, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("encode rows: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var document any
	if err := dec.Decode(&document); err != nil {
		return fmt.Errorf("decode rows: %w", err)
	}

	if err := compiled.Validate(document); err != nil {
		return fmt.Errorf("%s schema validation: %w", t, err)
	}
	return nil
}

func (v *Validator) getOrCompile(t Type) (*jsonschema.Schema, error) {
	v.mu.RLock()
	compiled, ok := v.cache[t]
	v.mu.RUnlock()
	if ok {
		return compiled, nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if compiled, ok = v.cache[t]; ok {
		return compiled, nil
	}

	def, err := Schema(t)
	if err != nil {
		return nil, fmt.Errorf("build schema %s: %w", t, err)
	}
	key := fmt.Sprintf("memory://reports/%s/%s.json", t.Provider(), t.Name())
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(key, bytes.NewReader(def)); err != nil {
		return nil, fmt.Errorf("register schema %s: %w", key, err)
	}
	newCompiled, err := compiler.Compile(key)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", key, err)
	}

	v.cache[t] = newCompiled
	return newCompiled, nil
}
