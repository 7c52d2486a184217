package constants

import "strings"

// Mode selects the primary OCR provider and the normalization shape of its payload.
type Mode string

const (
	ModeDatalabAPI Mode = "datalab_api"
	ModeGDocAI     Mode = "gdocai"
	ModeOpenAIAPI  Mode = "openai_api"
	ModeChandra    Mode = "chandra"
)

// Engine identifiers recorded in engine chains.
const (
	EngineGDocAIGate = "gdocai_gate"
)

var allModes = []Mode{
	ModeDatalabAPI,
	ModeGDocAI,
	ModeOpenAIAPI,
	ModeChandra,
}

// Modes returns the supported modes as strings, in a stable order.
func Modes() []string {
	result := make([]string, len(allModes))
	for i, m := range allModes {
		result[i] = string(m)
	}
	return result
}

// CanonicalizeMode resolves user input (including a few aliases) to a supported Mode.
func CanonicalizeMode(input string) (Mode, bool) {
	normalized := strings.ToLower(strings.TrimSpace(input))
	if normalized == "" {
		return "", false
	}

	synonyms := map[string]Mode{
		"datalab":      ModeDatalabAPI,
		"datalab-api":  ModeDatalabAPI,
		"docai":        ModeGDocAI,
		"documentai":   ModeGDocAI,
		"gdoc":         ModeGDocAI,
		"openai":       ModeOpenAIAPI,
		"openai-api":   ModeOpenAIAPI,
		"chandra-vllm": ModeChandra,
	}
	if m, ok := synonyms[normalized]; ok {
		return m, true
	}

	for _, m := range allModes {
		if normalized == string(m) {
			return m, true
		}
	}
	return "", false
}
