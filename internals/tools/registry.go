package tools

import (
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

const (
	NameSearch = "search"
	NameAIPipe = "aipipe"
	NameJSExec = "js_exec"
)

// Definition describes a tool to the model. Parameters is a JSON Schema object.
type Definition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

var defSearch = Definition{
	Name:        NameSearch,
	Description: "Return Google search snippets for a query",
	Parameters: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "Search query",
			},
		},
		"required": []string{"query"},
	},
}

var defAIPipe = Definition{
	Name:        NameAIPipe,
	Description: "Call an AI Pipe proxy with a path and payload. Always send a JSON object in 'payload'.",
	Parameters: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "Relative API path (default /run). For Postman Echo use /post.",
			},
			"payload": map[string]any{
				"type":                 "object",
				"description":          "Arbitrary JSON object to send to the pipe",
				"additionalProperties": true,
			},
		},
		"required": []string{"payload"},
	},
}

var defJSExec = Definition{
	Name:        NameJSExec,
	Description: "Run JavaScript in a sandbox; return stdout/result as text",
	Parameters: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"code": map[string]any{
				"type":        "string",
				"description": "JavaScript code to run",
			},
		},
		"required": []string{"code"},
	},
}

// Registry is fixed once built; callers only read from it.
type Registry struct {
	defs     []Definition
	byName   map[string]int
	resolved map[string]*jsonschema.Resolved
}

func NewRegistry(defs ...Definition) (*Registry, error) {
	r := &Registry{
		defs:     make([]Definition, 0, len(defs)),
		byName:   make(map[string]int, len(defs)),
		resolved: make(map[string]*jsonschema.Resolved, len(defs)),
	}
	for _, d := range defs {
		if d.Name == "" {
			return nil, fmt.Errorf("tool name is empty")
		}
		if _, dup := r.byName[d.Name]; dup {
			return nil, fmt.Errorf("tool %s already registered", d.Name)
		}
		rs, err := resolveSchema(d.Parameters)
		if err != nil {
			return nil, fmt.Errorf("tool %s: %w", d.Name, err)
		}
		r.byName[d.Name] = len(r.defs)
		r.defs = append(r.defs, d)
		r.resolved[d.Name] = rs
	}
	return r, nil
}

// Default returns the canonical search, aipipe and js_exec registry.
func Default() *Registry {
	r, err := NewRegistry(defSearch, defAIPipe, defJSExec)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Registry) Definitions() []Definition {
	out := make([]Definition, len(r.defs))
	copy(out, r.defs)
	return out
}

func (r *Registry) Lookup(name string) (Definition, bool) {
	i, ok := r.byName[name]
	if !ok {
		return Definition{}, false
	}
	return r.defs[i], true
}

// Validate checks decoded arguments against the tool's schema.
// Unregistered names validate trivially.
func (r *Registry) Validate(name string, args map[string]any) error {
	rs, ok := r.resolved[name]
	if !ok || rs == nil {
		return nil
	}
	return rs.Validate(args)
}

func resolveSchema(params map[string]any) (*jsonschema.Resolved, error) {
	if params == nil {
		return nil, nil
	}
	b, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	var s jsonschema.Schema
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	rs, err := s.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("resolve schema: %w", err)
	}
	return rs, nil
}
