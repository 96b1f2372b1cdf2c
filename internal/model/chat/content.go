package chat

import "encoding/json"

// NormalizeContent coerces the heterogeneous content forms the backend emits
// into a single string. Plain strings pass through, `{text: ...}` and
// `{content: ...}` wrappers are unwrapped, anything else becomes compact
// JSON. The same function runs for live responses and reloaded history so a
// message round-trips identically through either path.
func NormalizeContent(v any) string {
	switch content := v.(type) {
	case nil:
		return ""
	case string:
		return content
	case map[string]any:
		if text, ok := content["text"]; ok {
			return NormalizeContent(text)
		}
		if inner, ok := content["content"]; ok {
			return NormalizeContent(inner)
		}
	}

	encoded, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(encoded)
}

// NormalizeRawContent decodes raw JSON content and normalizes it.
func NormalizeRawContent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return NormalizeContent(v)
}
