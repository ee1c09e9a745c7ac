package models

import (
	"encoding/json"
	"fmt"
)

// ChoicesFrom decodes a loosely typed choice list as stored by the host.
// Accepts []Choice, []map[string]any, []any of maps or bare strings.
func ChoicesFrom(raw any) []Choice {
	switch v := raw.(type) {
	case nil:
		return nil
	case []Choice:
		out := make([]Choice, len(v))
		copy(out, v)
		return out
	case []map[string]any:
		out := make([]Choice, 0, len(v))
		for _, m := range v {
			out = append(out, choiceFromMap(m))
		}
		return out
	case []any:
		out := make([]Choice, 0, len(v))
		for _, item := range v {
			switch c := item.(type) {
			case map[string]any:
				out = append(out, choiceFromMap(c))
			case Choice:
				out = append(out, c)
			case string:
				out = append(out, Choice{N: c, V: c})
			}
		}
		return out
	}
	return nil
}

func choiceFromMap(m map[string]any) Choice {
	c := Choice{}
	for k, val := range m {
		switch k {
		case "n":
			c.N = fmt.Sprint(val)
		case "v":
			c.V = fmt.Sprint(val)
		case "extra":
			if extra, ok := val.(map[string]any); ok {
				if c.Extra == nil {
					c.Extra = map[string]any{}
				}
				for ek, ev := range extra {
					c.Extra[ek] = ev
				}
			}
		default:
			if c.Extra == nil {
				c.Extra = map[string]any{}
			}
			c.Extra[k] = val
		}
	}
	if c.V == "" {
		c.V = c.N
	}
	return c
}

// Map returns the choice in its stored shape: n, v and every metadata key
// at the top level
func (c Choice) Map() map[string]any {
	m := make(map[string]any, len(c.Extra)+2)
	for k, v := range c.Extra {
		m[k] = v
	}
	m["n"] = c.N
	m["v"] = c.V
	return m
}

// MarshalJSON writes metadata keys beside n and v
func (c Choice) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Map())
}

// UnmarshalJSON reads a stored choice, keeping unknown keys as metadata
func (c *Choice) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*c = choiceFromMap(m)
	return nil
}
