package tools

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Schema is a compiled parameter contract: an object with typed properties,
// a required list and optional enums. Unknown properties are rejected.
type Schema struct {
	props    map[string]propSchema
	required []string
}

type propSchema struct {
	typ   string // "" = any
	enum  []interface{}
	items *propSchema
}

// CompileSchema compiles a JSON-schema-like parameter map.
func CompileSchema(params map[string]interface{}) (*Schema, error) {
	s := &Schema{props: map[string]propSchema{}}
	if params == nil {
		return s, nil
	}
	if t, ok := params["type"].(string); ok && t != "object" {
		return nil, fmt.Errorf("schema: top-level type must be object, got %q", t)
	}

	if raw, ok := params["properties"]; ok {
		props, ok := raw.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("schema: properties must be an object")
		}
		for name, def := range props {
			m, ok := def.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("schema: property %q must be an object", name)
			}
			p, err := compileProp(m)
			if err != nil {
				return nil, fmt.Errorf("schema: property %q: %w", name, err)
			}
			s.props[name] = p
		}
	}

	switch req := params["required"].(type) {
	case nil:
	case []string:
		s.required = append(s.required, req...)
	case []interface{}:
		for _, r := range req {
			name, ok := r.(string)
			if !ok {
				return nil, fmt.Errorf("schema: required entries must be strings")
			}
			s.required = append(s.required, name)
		}
	default:
		return nil, fmt.Errorf("schema: required must be a list")
	}
	for _, name := range s.required {
		if _, ok := s.props[name]; !ok {
			return nil, fmt.Errorf("schema: required property %q is not declared", name)
		}
	}
	return s, nil
}

var knownTypes = map[string]bool{
	"string": true, "integer": true, "number": true, "boolean": true, "array": true, "object": true,
}

func compileProp(m map[string]interface{}) (propSchema, error) {
	var p propSchema
	if t, ok := m["type"].(string); ok {
		if !knownTypes[t] {
			return p, fmt.Errorf("unknown type %q", t)
		}
		p.typ = t
	}
	switch e := m["enum"].(type) {
	case nil:
	case []interface{}:
		p.enum = e
	case []string:
		for _, v := range e {
			p.enum = append(p.enum, v)
		}
	default:
		return p, fmt.Errorf("enum must be a list")
	}
	if items, ok := m["items"].(map[string]interface{}); ok {
		ip, err := compileProp(items)
		if err != nil {
			return p, fmt.Errorf("items: %w", err)
		}
		p.items = &ip
	}
	return p, nil
}

// Validate checks args against the schema and reports every violation.
func (s *Schema) Validate(args map[string]interface{}) error {
	var problems []string
	for _, name := range s.required {
		if _, ok := args[name]; !ok {
			problems = append(problems, fmt.Sprintf("missing required parameter %q", name))
		}
	}

	names := make([]string, 0, len(args))
	for name := range args {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		p, ok := s.props[name]
		if !ok {
			problems = append(problems, fmt.Sprintf("unexpected parameter %q", name))
			continue
		}
		if err := p.check(args[name]); err != nil {
			problems = append(problems, fmt.Sprintf("parameter %q: %v", name, err))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return nil
}

func (p propSchema) check(v interface{}) error {
	if !matchesType(p.typ, v) {
		return fmt.Errorf("expected %s, got %T", p.typ, v)
	}
	if len(p.enum) > 0 && !inEnum(p.enum, v) {
		return fmt.Errorf("value %v not in %v", v, p.enum)
	}
	if p.items != nil {
		if list, ok := v.([]interface{}); ok {
			for i, item := range list {
				if err := p.items.check(item); err != nil {
					return fmt.Errorf("item %d: %w", i, err)
				}
			}
		}
	}
	return nil
}

func matchesType(typ string, v interface{}) bool {
	switch typ {
	case "":
		return true
	case "string":
		_, ok := v.(string)
		return ok
	case "boolean":
		_, ok := v.(bool)
		return ok
	case "integer":
		switch n := v.(type) {
		case int, int32, int64:
			return true
		case float64:
			return n == math.Trunc(n) && !math.IsInf(n, 0)
		}
		return false
	case "number":
		switch v.(type) {
		case int, int32, int64, float32, float64:
			return true
		}
		return false
	case "array":
		switch v.(type) {
		case []interface{}, []string:
			return true
		}
		return false
	case "object":
		_, ok := v.(map[string]interface{})
		return ok
	}
	return false
}

func inEnum(enum []interface{}, v interface{}) bool {
	s := fmt.Sprint(v)
	for _, e := range enum {
		if fmt.Sprint(e) == s {
			return true
		}
	}
	return false
}
