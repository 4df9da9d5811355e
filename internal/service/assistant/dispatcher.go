package assistant

import (
	"context"
	"fmt"
	"time"

	"voxassist/internal/models"
)

// Dispatch records the exchange in the user's conversation log and
// routes the normalized intent: wall-clock intents get their response
// recomputed from server-local time (a generative model is never
// trusted for "now"), passthrough intents are returned unchanged for
// the caller to execute, and unknown kinds produce a non-fatal reply
// echoing the unrecognized type.
//
// The two turns are appended before any rewriting so the persisted
// history keeps the oracle's original proposed reply.
func (s *Service) Dispatch(ctx context.Context, user *models.User, command string, intent models.Intent) (models.Intent, error) {
	turns := []models.Turn{
		{UserID: user.ID, Role: models.RoleUser, Content: command},
		{UserID: user.ID, Role: models.RoleAssistant, Content: intent.Response},
	}
	if err := s.AppendHistory(ctx, user.ID, turns); err != nil {
		return models.Intent{}, err
	}

	switch {
	case intent.Type.Local():
		intent.Response = localAnswer(intent.Type, time.Now())
	case !intent.Type.Known():
		return models.Intent{
			Type:      models.IntentGeneral,
			UserInput: command,
			Response:  fmt.Sprintf("I know the intent is to %s, but I haven't been programmed for that action yet.", intent.Type),
		}, nil
	}
	return intent, nil
}

// localAnswer phrases the reply for a wall-clock intent kind.
func localAnswer(kind models.IntentKind, now time.Time) string {
	switch kind {
	case models.IntentGetDate:
		return "The current date is " + formatLongDate(now)
	case models.IntentGetTime:
		return "The time is " + now.Format("03:04 PM")
	case models.IntentGetDay:
		return "Today is " + now.Format("Monday")
	default:
		return "The current month is " + now.Format("January")
	}
}

// formatLongDate renders e.g. "Monday, January 2nd 2006".
func formatLongDate(t time.Time) string {
	return fmt.Sprintf("%s, %s %s %d", t.Format("Monday"), t.Format("January"), ordinal(t.Day()), t.Year())
}

func ordinal(n int) string {
	suffix := "th"
	switch {
	case n%100 >= 11 && n%100 <= 13:
	case n%10 == 1:
		suffix = "st"
	case n%10 == 2:
		suffix = "nd"
	case n%10 == 3:
		suffix = "rd"
	}
	return fmt.Sprintf("%d%s", n, suffix)
}
