package tools

import "fmt"

func argString(args map[string]interface{}, key string) string {
	s, _ := args[key].(string)
	return s
}

// argInt reads an integer argument; JSON numbers decode as float64.
func argInt(args map[string]interface{}, key string, def int) int {
	switch n := args[key].(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	}
	return def
}

func argStrings(args map[string]interface{}, key string) []string {
	switch v := args[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprint(item))
		}
		return out
	}
	return nil
}
