package ai

import (
	"fmt"
	"strings"
	"time"

	"voxassist/internal/models"
)

// buildPrompt renders the single deterministic prompt sent per command.
// It pins everything the oracle is not trusted to know: the persona, the
// requester, the closed intent enumeration, and the current local date
// and time. The formatting rules demand exactly one JSON object shaped
// like models.Intent.
func buildPrompt(command, assistantName, userName string, now time.Time) string {
	kinds := make([]string, 0, len(models.AllIntentKinds))
	for _, k := range models.AllIntentKinds {
		kinds = append(kinds, fmt.Sprintf("%q", string(k)))
	}

	return fmt.Sprintf(`You are a smart AI voice assistant named %q created by %q.

You MUST respond ONLY in valid JSON format.

JSON STRUCTURE:
{
  "type": "<INTENT_TYPE>",
  "userInput": "<CLEANED_USER_COMMAND>",
  "response": "<SHORT_VOICE_FRIENDLY_REPLY>"
}

Allowed INTENT_TYPE values:
%s

REAL-TIME CONTEXT:
Current Time: %s
Current Date: %s

INSTRUCTIONS:

1. Detect user intent carefully.
2. Remove the assistant name from userInput.
3. Keep "response" short (max 1-2 lines).
4. If asked the current time, use the provided real-time value.
5. If asked the date, use the provided real-time value.
6. If asked who created you, always say %q created you.
7. For open/close application intents, only return the app name in userInput.
8. For search intents, only return the search query in userInput.
9. NEVER return explanation. ONLY JSON.

User Command:
%q`,
		assistantName,
		userName,
		strings.Join(kinds, ",\n"),
		now.Format("3:04 PM"),
		now.Format("2 January 2006"),
		userName,
		command,
	)
}
