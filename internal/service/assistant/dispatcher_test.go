package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"voxassist/internal/models"
)

func TestDispatchLocalTimeIntents(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	svc := NewService(db)
	ctx := context.Background()
	user := registerTestUser(t, svc, "frank")

	now := time.Now()
	cases := []struct {
		kind       models.IntentKind
		wantPrefix string
		wantPart   string
	}{
		{models.IntentGetDate, "The current date is ", now.Format("Monday")},
		{models.IntentGetTime, "The time is ", "M"},
		{models.IntentGetDay, "Today is ", now.Format("Monday")},
		{models.IntentGetMonth, "The current month is ", now.Format("January")},
	}
	for _, tc := range cases {
		in := models.Intent{Type: tc.kind, UserInput: "now", Response: "the oracle made something up"}
		out, err := svc.Dispatch(ctx, user, "tell me", in)
		if err != nil {
			t.Fatalf("%s: dispatch: %v", tc.kind, err)
		}
		if out.Response == in.Response {
			t.Fatalf("%s: oracle response was not overridden", tc.kind)
		}
		if !strings.HasPrefix(out.Response, tc.wantPrefix) {
			t.Fatalf("%s: expected prefix %q, got %q", tc.kind, tc.wantPrefix, out.Response)
		}
		if !strings.Contains(out.Response, tc.wantPart) {
			t.Fatalf("%s: expected %q in %q", tc.kind, tc.wantPart, out.Response)
		}
		if out.Type != tc.kind || out.UserInput != in.UserInput {
			t.Fatalf("%s: type/userInput must pass through: %+v", tc.kind, out)
		}
	}
}

func TestDispatchPassthroughUnchanged(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	svc := NewService(db)
	ctx := context.Background()
	user := registerTestUser(t, svc, "grace")

	kinds := []models.IntentKind{
		models.IntentGeneral,
		models.IntentGoogleSearch,
		models.IntentYoutubeSearch,
		models.IntentYoutubePlay,
		models.IntentWeatherShow,
		models.IntentOpenApplication,
		models.IntentCloseApplication,
		models.IntentCalculatorOpen,
		models.IntentInstagramOpen,
		models.IntentFacebookOpen,
	}
	for _, kind := range kinds {
		in := models.Intent{Type: kind, UserInput: "something", Response: "doing it"}
		out, err := svc.Dispatch(ctx, user, "do something", in)
		if err != nil {
			t.Fatalf("%s: dispatch: %v", kind, err)
		}
		if out != in {
			t.Fatalf("%s: passthrough intent changed: %+v vs %+v", kind, out, in)
		}
	}
}

func TestDispatchAppendsTwoTurnsPreOverride(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	svc := NewService(db)
	ctx := context.Background()
	user := registerTestUser(t, svc, "heidi")

	in := models.Intent{Type: models.IntentGetTime, UserInput: "time", Response: "oracle proposed reply"}
	out, err := svc.Dispatch(ctx, user, "hey what time is it", in)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if out.Response == "oracle proposed reply" {
		t.Fatalf("expected local override")
	}

	history, err := svc.GetHistory(ctx, user.ID)
	if err != nil {
		t.Fatalf("get history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected exactly 2 turns, got %d", len(history))
	}
	if history[0].Role != models.RoleUser || history[0].Content != "hey what time is it" {
		t.Fatalf("requester turn wrong: %+v", history[0])
	}
	// History keeps the oracle's proposal, not the locally overridden reply.
	if history[1].Role != models.RoleAssistant || history[1].Content != "oracle proposed reply" {
		t.Fatalf("assistant turn wrong: %+v", history[1])
	}
}

func TestDispatchUnrecognizedIntent(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	svc := NewService(db)
	ctx := context.Background()
	user := registerTestUser(t, svc, "ivan")

	in := models.Intent{Type: "fly-to-moon", UserInput: "moon", Response: "lifting off"}
	out, err := svc.Dispatch(ctx, user, "fly me to the moon", in)
	if err != nil {
		t.Fatalf("unrecognized intent must not be fatal: %v", err)
	}
	if !strings.Contains(out.Response, "fly-to-moon") {
		t.Fatalf("response must echo the unknown type, got %q", out.Response)
	}
	if out.Type != models.IntentGeneral || out.UserInput != "fly me to the moon" {
		t.Fatalf("unexpected unrecognized envelope: %+v", out)
	}

	// The exchange is still recorded.
	history, err := svc.GetHistory(ctx, user.ID)
	if err != nil {
		t.Fatalf("get history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(history))
	}
}

func TestDispatchHistoryValidationFailure(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	svc := NewService(db)
	ctx := context.Background()
	user := registerTestUser(t, svc, "judy")

	// An empty oracle response cannot be stored as an assistant turn.
	in := models.Intent{Type: models.IntentGeneral, UserInput: "hi", Response: ""}
	_, err := svc.Dispatch(ctx, user, "hi", in)
	if !errors.Is(err, ErrHistoryValidation) {
		t.Fatalf("expected ErrHistoryValidation, got %v", err)
	}
}

func TestFormatLongDate(t *testing.T) {
	cases := []struct {
		day  int
		want string
	}{
		{1, "1st"},
		{2, "2nd"},
		{3, "3rd"},
		{4, "4th"},
		{11, "11th"},
		{12, "12th"},
		{13, "13th"},
		{21, "21st"},
		{22, "22nd"},
		{23, "23rd"},
		{30, "30th"},
	}
	for _, tc := range cases {
		ts := time.Date(2026, time.August, tc.day, 12, 0, 0, 0, time.UTC)
		got := formatLongDate(ts)
		want := fmt.Sprintf("%s, August %s 2026", ts.Format("Monday"), tc.want)
		if got != want {
			t.Fatalf("day %d: got %q want %q", tc.day, got, want)
		}
	}
}
