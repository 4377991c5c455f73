package source

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/rafaeljc/skylab/internal/evaluation"
)

// ErrInvalidConfig is returned when a flag document cannot be parsed or
// fails validation.
var ErrInvalidConfig = errors.New("invalid flag configuration")

//go:embed schema/flags.schema.json
var schemaJSON []byte

var (
	schemaOnce sync.Once
	schema     *gojsonschema.Schema
	schemaErr  error
)

func flagSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaJSON))
	})
	return schema, schemaErr
}

// Document is the serialized form of a flag set, shared by flag files and
// the snapshots published to Redis.
type Document struct {
	Flags []evaluation.Flag `json:"flags"`
}

// EncodeFlags serializes flags as a Document.
func EncodeFlags(flags []evaluation.Flag) ([]byte, error) {
	if flags == nil {
		flags = []evaluation.Flag{}
	}
	data, err := json.Marshal(Document{Flags: flags})
	if err != nil {
		return nil, fmt.Errorf("failed to encode flags: %w", err)
	}
	return data, nil
}

// ParseFlags decodes a JSON or YAML flag document. Both a {"flags": [...]}
// object and a bare list are accepted. The document is checked against the
// flag schema, every flag is validated and keys must be unique.
func ParseFlags(data []byte) ([]evaluation.Flag, error) {
	raw, err := toJSON(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if err := validateSchema(raw); err != nil {
		return nil, err
	}

	var flags []evaluation.Flag
	if bytes.HasPrefix(raw, []byte("[")) {
		err = json.Unmarshal(raw, &flags)
	} else {
		var doc Document
		err = json.Unmarshal(raw, &doc)
		flags = doc.Flags
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	seen := make(map[string]struct{}, len(flags))
	for i := range flags {
		if err := flags[i].Validate(); err != nil {
			return nil, fmt.Errorf("%w: flag #%d: %v", ErrInvalidConfig, i, err)
		}
		if _, dup := seen[flags[i].Key]; dup {
			return nil, fmt.Errorf("%w: duplicate flag key %q", ErrInvalidConfig, flags[i].Key)
		}
		seen[flags[i].Key] = struct{}{}
	}

	if flags == nil {
		flags = []evaluation.Flag{}
	}
	return flags, nil
}

func validateSchema(raw []byte) error {
	s, err := flagSchema()
	if err != nil {
		return fmt.Errorf("failed to load flag schema: %w", err)
	}

	result, err := s.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
}

// toJSON returns JSON input unchanged, so number literals survive, and
// converts anything else through YAML.
func toJSON(data []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errors.New("empty document")
	}
	if trimmed[0] == '{' || trimmed[0] == '[' {
		if !json.Valid(trimmed) {
			// Flow style YAML also starts with a bracket.
			return yamlToJSON(trimmed)
		}
		return trimmed, nil
	}
	return yamlToJSON(trimmed)
}

func yamlToJSON(data []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse yaml: %w", err)
	}
	return json.Marshal(normalizeYAML(doc))
}

// normalizeYAML rewrites map[any]any nodes, which encoding/json rejects.
func normalizeYAML(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, item := range t {
			t[k] = normalizeYAML(item)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[fmt.Sprint(k)] = normalizeYAML(item)
		}
		return out
	case []any:
		for i, item := range t {
			t[i] = normalizeYAML(item)
		}
		return t
	default:
		return v
	}
}
