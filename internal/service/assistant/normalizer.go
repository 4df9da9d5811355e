package assistant

import (
	"encoding/json"
	"strings"

	"voxassist/internal/models"
)

// Fallback reply strings for the two normalization failure modes. They
// must stay distinct so each path is independently observable.
const (
	noJSONResponse  = "I received a strange signal and couldn't process the command. Please try again."
	badJSONResponse = "The server failed to read my instructions due to a formatting error."
)

// Normalize coerces the oracle's raw text into a well-formed intent.
// The oracle is instructed to emit only JSON but may wrap it in prose,
// so the first top-level brace-delimited substring is extracted before
// parsing. Any failure yields a general fallback intent built from the
// original command; Normalize never returns a partially-formed value.
func Normalize(rawText, originalCommand string) models.Intent {
	raw, ok := extractJSONObject(rawText)
	if !ok {
		return fallbackIntent(originalCommand, noJSONResponse)
	}

	var intent models.Intent
	if err := json.Unmarshal([]byte(raw), &intent); err != nil {
		return fallbackIntent(originalCommand, badJSONResponse)
	}
	if intent.Response == "" {
		// Parsed but unusable: no reply text to speak.
		return fallbackIntent(originalCommand, badJSONResponse)
	}
	if intent.UserInput == "" {
		intent.UserInput = originalCommand
	}
	return intent
}

// extractJSONObject returns the first balanced {...} substring,
// ignoring braces inside JSON string literals.
func extractJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

func fallbackIntent(command, response string) models.Intent {
	return models.Intent{
		Type:      models.IntentGeneral,
		UserInput: command,
		Response:  response,
	}
}
