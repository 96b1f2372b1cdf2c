package response

import "encoding/json"

// Legacy session classification kinds from the protocol revision that
// predates chat contexts. Kept only so old backends keep working.
const (
	LegacyAnalytesOfSample = "request_analytes_of_sample"
	LegacyConfirmation     = "asking_for_confirmation"
	LegacyCommitResult     = "commit_this_result"
	LegacyContent          = "content"
)

// LegacyRecord is a session-classification payload from the prior protocol
// version, surfaced so the session store can mirror it.
type LegacyRecord struct {
	Kind    string
	Data    json.RawMessage
	Content string
}

type legacyEnvelope struct {
	Type           string          `json:"type,omitempty"`
	Content        json.RawMessage `json:"content,omitempty"`
	AnalyteResults json.RawMessage `json:"analyte_results,omitempty"`
	AnalyteMatches json.RawMessage `json:"analyte_matches,omitempty"`
}

// Legacy inspects a response that matched no modern shape and extracts the
// old session-classification record when the markers are present.
func Legacy(raw json.RawMessage) (LegacyRecord, bool) {
	var env legacyEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return LegacyRecord{}, false
	}

	switch env.Type {
	case LegacyAnalytesOfSample:
		return LegacyRecord{Kind: env.Type, Data: env.AnalyteResults}, true
	case LegacyConfirmation, LegacyCommitResult:
		return LegacyRecord{Kind: env.Type, Data: env.AnalyteMatches}, true
	case "":
		if present(env.Content) {
			var s string
			if err := json.Unmarshal(env.Content, &s); err != nil {
				return LegacyRecord{}, false
			}
			return LegacyRecord{Kind: LegacyContent, Content: s}, true
		}
	}
	return LegacyRecord{}, false
}
