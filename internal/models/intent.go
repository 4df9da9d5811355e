package models

// IntentKind names one recognized voice command action.

type IntentKind string

const (
	IntentGeneral          IntentKind = "general"
	IntentGoogleSearch     IntentKind = "google-search"
	IntentYoutubeSearch    IntentKind = "youtube-search"
	IntentYoutubePlay      IntentKind = "youtube-play"
	IntentWeatherShow      IntentKind = "weather-show"
	IntentGetTime          IntentKind = "get-time"
	IntentGetDate          IntentKind = "get-date"
	IntentGetDay           IntentKind = "get-day"
	IntentGetMonth         IntentKind = "get-month"
	IntentOpenApplication  IntentKind = "open-application"
	IntentCloseApplication IntentKind = "close-application"
	IntentCalculatorOpen   IntentKind = "calculator-open"
	IntentInstagramOpen    IntentKind = "instagram-open"
	IntentFacebookOpen     IntentKind = "facebook-open"
)

// AllIntentKinds is the closed enumeration advertised to the oracle.
var AllIntentKinds = []IntentKind{
	IntentGeneral,
	IntentGoogleSearch,
	IntentYoutubeSearch,
	IntentYoutubePlay,
	IntentWeatherShow,
	IntentGetTime,
	IntentGetDate,
	IntentGetDay,
	IntentGetMonth,
	IntentOpenApplication,
	IntentCloseApplication,
	IntentCalculatorOpen,
	IntentInstagramOpen,
	IntentFacebookOpen,
}

// Known reports whether the kind belongs to the closed enumeration.
// Any other value is the explicit "unknown" variant carrying whatever
// raw string the oracle produced.
func (k IntentKind) Known() bool {
	for _, known := range AllIntentKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Local reports whether the kind is answered from server-local time
// instead of the oracle's proposed reply.
func (k IntentKind) Local() bool {
	switch k {
	case IntentGetTime, IntentGetDate, IntentGetDay, IntentGetMonth:
		return true
	default:
		return false
	}
}

// Intent is the validated result of interpreting one voice command:
// the action kind, the cleaned command text, and a short reply meant
// for speech playback. Serialized as a flat object with exactly the
// keys type, userInput and response.
type Intent struct {
	Type      IntentKind `json:"type"`
	UserInput string     `json:"userInput"`
	Response  string     `json:"response"`
}
