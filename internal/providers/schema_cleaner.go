package providers

import "strings"

// Ark (Volcengine) rejects schema references and annotation keywords.
var volcengineDrop = map[string]bool{
	"$ref": true, "$defs": true, "additionalProperties": true, "examples": true, "default": true,
}

// CleanToolSchemas returns tools with the JSON Schema keywords the provider
// rejects stripped from every parameter schema. tools is never modified;
// providers that accept full schemas get it back as is.
func CleanToolSchemas(providerName string, tools []ToolDefinition) []ToolDefinition {
	drop := droppedKeywords(providerName)
	if drop == nil || len(tools) == 0 {
		return tools
	}

	out := make([]ToolDefinition, len(tools))
	for i, t := range tools {
		out[i] = t
		if t.Function.Parameters != nil {
			out[i].Function.Parameters = stripSchema(t.Function.Parameters, drop)
		}
	}
	return out
}

func droppedKeywords(provider string) map[string]bool {
	if provider == "volcengine" || strings.HasPrefix(provider, "doubao") {
		return volcengineDrop
	}
	return nil
}

// stripSchema copies schema without the dropped keywords. Names under
// "properties" are user fields, not keywords, and are always kept.
func stripSchema(schema map[string]interface{}, drop map[string]bool) map[string]interface{} {
	out := make(map[string]interface{}, len(schema))
	for k, v := range schema {
		if drop[k] {
			continue
		}
		if k == "properties" {
			if props, ok := v.(map[string]interface{}); ok {
				kept := make(map[string]interface{}, len(props))
				for name, p := range props {
					kept[name] = stripValue(p, drop)
				}
				out[k] = kept
				continue
			}
		}
		out[k] = stripValue(v, drop)
	}
	return out
}

func stripValue(v interface{}, drop map[string]bool) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return stripSchema(val, drop)
	case []interface{}:
		items := make([]interface{}, len(val))
		for i, item := range val {
			items[i] = stripValue(item, drop)
		}
		return items
	default:
		return v
	}
}
