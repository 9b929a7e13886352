package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-workout-planner/internal/apierr"
	"ai-workout-planner/internal/intake"
	"ai-workout-planner/internal/metrics"
	"ai-workout-planner/internal/records"
	"ai-workout-planner/internal/workout"
)

const (
	allowedID = int64(42)
	adminID   = int64(7)
)

type fakeAPI struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) HandleUpdate(r *http.Request) (*tgbotapi.Update, error) {
	var u tgbotapi.Update
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		return nil, err
	}
	return &u, nil
}

// texts returns the text of every message and edit sent so far.
func (f *fakeAPI) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.sent {
		switch m := c.(type) {
		case tgbotapi.MessageConfig:
			out = append(out, m.Text)
		case tgbotapi.EditMessageTextConfig:
			out = append(out, m.Text)
		}
	}
	return out
}

type fakePlanner struct {
	mu        sync.Mutex
	calls     []string
	overrides []intake.Fields
	plan      workout.Plan
	err       error
	latest    *records.Record
	latestErr error
}

func (f *fakePlanner) GenerateForUser(_ context.Context, userID string, overrides intake.Fields) (workout.Plan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, userID)
	f.overrides = append(f.overrides, overrides)
	return f.plan, f.err
}

func (f *fakePlanner) Latest(context.Context, string) (*records.Record, error) {
	return f.latest, f.latestErr
}

type fakeUsage struct{ rows []metrics.DailyUsage }

func (f fakeUsage) GetDailyUsage(context.Context, int) ([]metrics.DailyUsage, error) {
	return f.rows, nil
}

func samplePlan() workout.Plan {
	model := "gemini-2.5-flash"
	return workout.Plan{
		Weeks:       1,
		DaysPerWeek: 2,
		Plan: []workout.Day{
			{Day: "Day 1", DurationMin: 30, Warmup: "5 min march", Workout: []workout.Exercise{
				{Exercise: "Goblet Squat", Sets: 3, Reps: "8-12", RIR: 2, VideoURL: "https://www.youtube.com/results?search_query=Goblet%20Squat"},
			}},
			{Day: "Day 2", DurationMin: 30, Workout: []workout.Exercise{
				{Exercise: "Plank", Sets: 3, Reps: "30s"},
			}, Cooldown: "Stretch"},
		},
		Progression: "Add one rep each week",
		Meta:        workout.Meta{Source: workout.SourceGenerative, Model: &model},
	}
}

func command(from int64, text string) tgbotapi.Update {
	cmd, _, _ := strings.Cut(text, " ")
	return tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 1,
		From:      &tgbotapi.User{ID: from, UserName: "lifter"},
		Chat:      &tgbotapi.Chat{ID: from},
		Text:      text,
		Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}},
	}}
}

func newTestBot(planner *fakePlanner) (*Bot, *fakeAPI) {
	api := &fakeAPI{}
	bot := NewBot(api, planner, fakeUsage{rows: []metrics.DailyUsage{{Date: "2026-10-14", TotalPrompt: 100, TotalCompletion: 50, Generations: 3, RuleFallbacks: 1}}},
		Config{AllowUserIDs: []int64{allowedID, adminID}, AdminID: adminID, DataDir: "."}, nil)
	return bot, api
}

func TestPlanCommandGeneratesForTelegramUser(t *testing.T) {
	planner := &fakePlanner{plan: samplePlan()}
	bot, api := newTestBot(planner)

	bot.HandleUpdate(context.Background(), command(allowedID, "/plan goal=fat loss days=3 equipment=dumbbells,bands"))

	require.Equal(t, []string{"tg:42"}, planner.calls)
	assert.Equal(t, intake.Fields{"goal": "fat loss", "days": "3", "equipment": "dumbbells,bands"}, planner.overrides[0])

	texts := api.texts()
	require.Len(t, texts, 2)
	assert.Contains(t, texts[0], "Building your plan")
	assert.Contains(t, texts[1], "*Your 2-day plan*")
	assert.Contains(t, texts[1], "Goblet Squat: 3 × 8-12 (RIR 2)")

	edit, ok := api.sent[1].(tgbotapi.EditMessageTextConfig)
	require.True(t, ok)
	require.NotNil(t, edit.ReplyMarkup)
	assert.Equal(t, callbackRegenerate, *edit.ReplyMarkup.InlineKeyboard[0][0].CallbackData)
}

func TestUnauthorizedUserIsIgnored(t *testing.T) {
	planner := &fakePlanner{plan: samplePlan()}
	bot, api := newTestBot(planner)

	bot.HandleUpdate(context.Background(), command(999, "/plan"))

	assert.Empty(t, planner.calls)
	assert.Empty(t, api.texts())
}

func TestPlanFailureAlertsAdmin(t *testing.T) {
	planner := &fakePlanner{err: errors.New("db `locked`")}
	bot, api := newTestBot(planner)

	bot.HandleUpdate(context.Background(), command(allowedID, "/plan"))

	texts := api.texts()
	require.Len(t, texts, 3)
	assert.Contains(t, texts[1], "Could not generate plan")
	assert.Contains(t, texts[1], "db 'locked'")
	assert.Contains(t, texts[2], "Plan generation failed")
	last, ok := api.sent[2].(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.Equal(t, adminID, last.ChatID)
}

func TestRegenerateCallback(t *testing.T) {
	planner := &fakePlanner{plan: samplePlan()}
	bot, api := newTestBot(planner)

	bot.HandleUpdate(context.Background(), tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb1",
		From:    &tgbotapi.User{ID: allowedID},
		Data:    callbackRegenerate,
		Message: &tgbotapi.Message{MessageID: 5, Chat: &tgbotapi.Chat{ID: allowedID}},
	}})

	assert.Len(t, api.requests, 1)
	require.Equal(t, []string{"tg:42"}, planner.calls)
	assert.Nil(t, planner.overrides[0])
	texts := api.texts()
	require.Len(t, texts, 2)
	assert.Contains(t, texts[1], "Your 2-day plan")
}

func TestMetricsIsAdminOnly(t *testing.T) {
	bot, api := newTestBot(&fakePlanner{})

	bot.HandleUpdate(context.Background(), command(allowedID, "/metrics"))
	bot.HandleUpdate(context.Background(), command(adminID, "/metrics"))

	texts := api.texts()
	require.Len(t, texts, 2)
	assert.Contains(t, texts[0], "Admin only")
	assert.Contains(t, texts[1], "3 plans (1 from rules), 150 tokens")
}

func TestLastCommand(t *testing.T) {
	plan := samplePlan()
	bot, api := newTestBot(&fakePlanner{latestErr: apierr.ErrNoPlan})
	bot.HandleUpdate(context.Background(), command(allowedID, "/last"))
	assert.Contains(t, api.texts()[0], "no plan yet")

	bot, api = newTestBot(&fakePlanner{latest: &records.Record{State: workout.StatePlanReady, Plan: &plan}})
	bot.HandleUpdate(context.Background(), command(allowedID, "/last"))
	assert.Contains(t, api.texts()[0], "Your 2-day plan")
}

func TestUnknownCommandShowsHelp(t *testing.T) {
	bot, api := newTestBot(&fakePlanner{})
	bot.HandleUpdate(context.Background(), command(allowedID, "/start"))
	assert.Equal(t, []string{helpText}, api.texts())
}

func TestWebhookAcknowledgesAndProcesses(t *testing.T) {
	planner := &fakePlanner{plan: samplePlan()}
	bot, api := newTestBot(planner)

	body, err := json.Marshal(command(allowedID, "/plan days=2"))
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	bot.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(string(body))))
	assert.Equal(t, http.StatusOK, rec.Code)

	assert.Eventually(t, func() bool { return len(api.texts()) == 2 }, time.Second, 10*time.Millisecond)

	bad := httptest.NewRecorder()
	bot.ServeHTTP(bad, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader("{")))
	assert.Equal(t, http.StatusBadRequest, bad.Code)
}
