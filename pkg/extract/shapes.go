package extract

import (
	"strconv"
	"strings"
)

// ShapesVersion changes whenever the shape table changes.
const ShapesVersion = "2"

// Shape is one known location of generated text in a provider envelope.
// Path segments are object keys, array indexes, or "*" to join every
// element of an array.
type Shape struct {
	Name string
	Path []string
}

// Shapes is tried in order; the first non-empty match wins.
var Shapes = []Shape{
	{Name: "contents", Path: []string{"contents", "0", "parts", "*", "text"}},
	{Name: "candidates", Path: []string{"candidates", "0", "content", "parts", "*", "text"}},
	{Name: "output_text", Path: []string{"output_text"}},
	{Name: "text", Path: []string{"text"}},
	{Name: "chat_completion", Path: []string{"choices", "0", "message", "content"}},
}

// Locate returns the generated text of an envelope and the matching shape.
func Locate(envelope map[string]any) (string, string, bool) {
	for _, s := range Shapes {
		parts := walk(envelope, s.Path)
		text := strings.Join(parts, "")
		if strings.TrimSpace(text) != "" {
			return text, s.Name, true
		}
	}
	return "", "", false
}

func walk(v any, path []string) []string {
	if len(path) == 0 {
		if s, ok := v.(string); ok {
			return []string{s}
		}
		return nil
	}
	seg, rest := path[0], path[1:]
	switch node := v.(type) {
	case map[string]any:
		child, ok := node[seg]
		if !ok {
			return nil
		}
		return walk(child, rest)
	case []any:
		if seg == "*" {
			var out []string
			for _, item := range node {
				out = append(out, walk(item, rest)...)
			}
			return out
		}
		i, err := strconv.Atoi(seg)
		if err != nil || i < 0 || i >= len(node) {
			return nil
		}
		return walk(node[i], rest)
	}
	return nil
}
