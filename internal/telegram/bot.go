package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"ai-workout-planner/internal/apierr"
	"ai-workout-planner/internal/intake"
	"ai-workout-planner/internal/logger"
	"ai-workout-planner/internal/metrics"
	"ai-workout-planner/internal/records"
	"ai-workout-planner/internal/workout"
)

const (
	callbackRegenerate = "regen"
	updateTimeout      = 2 * time.Minute
)

// API is the part of tgbotapi.BotAPI the bot talks to.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	HandleUpdate(r *http.Request) (*tgbotapi.Update, error)
}

// Planner runs the authenticated plan flow for Telegram users.
type Planner interface {
	GenerateForUser(ctx context.Context, userID string, overrides intake.Fields) (workout.Plan, error)
	Latest(ctx context.Context, userID string) (*records.Record, error)
}

type UsageReader interface {
	GetDailyUsage(ctx context.Context, days int) ([]metrics.DailyUsage, error)
}

type Config struct {
	AllowUserIDs []int64
	AdminID      int64
	// DataDir is reported in /metrics as the on-disk footprint.
	DataDir string
}

// Bot answers workout plan requests from allow-listed Telegram users.
type Bot struct {
	api     API
	planner Planner
	usage   UsageReader
	cfg     Config
	log     *logger.Logger
}

// Connect authorizes the token and points Telegram at webhookURL.
func Connect(token, webhookURL string, log *logger.Logger) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to init telegram api: %w", err)
	}
	log.Info("authorized on telegram", "account", api.Self.UserName)

	if webhookURL == "" {
		return api, nil
	}
	wh, err := tgbotapi.NewWebhook(webhookURL)
	if err != nil {
		return nil, fmt.Errorf("invalid webhook url %s: %w", webhookURL, err)
	}
	resp, err := api.Request(wh)
	if err != nil {
		return nil, fmt.Errorf("failed to set webhook to %s: %w", webhookURL, err)
	}
	log.Info("webhook set", "description", resp.Description)
	return api, nil
}

func NewBot(api API, planner Planner, usage UsageReader, cfg Config, log *logger.Logger) *Bot {
	if log == nil {
		log = logger.Nop()
	}
	return &Bot{api: api, planner: planner, usage: usage, cfg: cfg, log: log.With("component", "telegram")}
}

// ServeHTTP is the webhook endpoint. Telegram gets its 200 right away; the
// update is handled in the background.
func (b *Bot) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	update, err := b.api.HandleUpdate(r)
	if err != nil {
		b.log.Warn("error parsing update", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), updateTimeout)
		defer cancel()
		b.HandleUpdate(ctx, *update)
	}()
}

func userKey(id int64) string {
	return "tg:" + strconv.FormatInt(id, 10)
}

func (b *Bot) allowed(from *tgbotapi.User) bool {
	return from != nil && slices.Contains(b.cfg.AllowUserIDs, from.ID)
}

// HandleUpdate dispatches one update synchronously.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	if q := update.CallbackQuery; q != nil {
		if !b.allowed(q.From) {
			return
		}
		b.handleCallbackQuery(ctx, q)
		return
	}

	msg := update.Message
	if msg == nil {
		return
	}
	if !b.allowed(msg.From) {
		if msg.From != nil {
			b.log.Warn("unauthorized access attempt", "telegram_id", msg.From.ID, "username", msg.From.UserName)
		}
		return
	}

	switch msg.Command() {
	case "plan":
		b.handlePlanCommand(ctx, msg)
	case "last":
		b.handleLastCommand(ctx, msg)
	case "metrics":
		b.handleMetricsRequest(ctx, msg)
	default:
		b.send(msg.Chat.ID, helpText)
	}
}

const helpText = "🏋️ *Workout Planner*\n\n" +
	"`/plan goal=muscle gain days=3 duration=45 level=beginner equipment=dumbbells,bands`\n" +
	"Any field you leave out keeps its last value. Words before the first key are read as the goal.\n\n" +
	"`/last` shows your latest plan."

func (b *Bot) handlePlanCommand(ctx context.Context, msg *tgbotapi.Message) {
	fields, unknown := parsePlanArgs(msg.CommandArguments())
	if len(unknown) > 0 {
		b.send(msg.Chat.ID, fmt.Sprintf("⚠️ Ignoring unknown fields: %s", tgbotapi.EscapeText(tgbotapi.ModeMarkdown, strings.Join(unknown, ", "))))
	}

	sent, err := b.api.Send(markdown(tgbotapi.NewMessage(msg.Chat.ID, "🏋️ *Building your plan...*")))
	if err != nil {
		b.log.Error("failed to send initial reply", "error", err)
		return
	}
	b.generateAndSendPlan(ctx, msg.From.ID, msg.Chat.ID, sent.MessageID, fields)
}

func (b *Bot) handleCallbackQuery(ctx context.Context, q *tgbotapi.CallbackQuery) {
	if _, err := b.api.Request(tgbotapi.NewCallback(q.ID, "")); err != nil {
		b.log.Warn("failed to answer callback", "error", err)
	}
	if q.Data != callbackRegenerate || q.Message == nil {
		return
	}
	edit := tgbotapi.NewEditMessageText(q.Message.Chat.ID, q.Message.MessageID, "🏋️ *Building a fresh plan...*")
	edit.ParseMode = tgbotapi.ModeMarkdown
	b.sendChattable(edit)

	b.generateAndSendPlan(ctx, q.From.ID, q.Message.Chat.ID, q.Message.MessageID, nil)
}

func (b *Bot) generateAndSendPlan(ctx context.Context, telegramID, chatID int64, messageID int, fields intake.Fields) {
	userID := userKey(telegramID)
	plan, err := b.planner.GenerateForUser(ctx, userID, fields)
	if err != nil {
		b.log.Error("error generating plan", "user_id", userID, "error", err)
		safeErr := strings.ReplaceAll(err.Error(), "`", "'")
		edit := tgbotapi.NewEditMessageText(chatID, messageID, fmt.Sprintf("❌ *Could not generate plan:*\n```\n%s\n```", safeErr))
		edit.ParseMode = tgbotapi.ModeMarkdown
		b.sendChattable(edit)
		b.sendAdminAlert(fmt.Sprintf("⚠️ *Plan generation failed*\nUser: %s", tgbotapi.EscapeText(tgbotapi.ModeMarkdown, userID)))
		return
	}

	parts := formatPlanMarkdown(plan)
	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🔄 New plan", callbackRegenerate)),
	)
	for i, part := range parts {
		if i == 0 {
			edit := tgbotapi.NewEditMessageText(chatID, messageID, part)
			edit.ParseMode = tgbotapi.ModeMarkdown
			edit.DisableWebPagePreview = true
			if len(parts) == 1 {
				edit.ReplyMarkup = &keyboard
			}
			b.sendChattable(edit)
			continue
		}
		m := markdown(tgbotapi.NewMessage(chatID, part))
		m.DisableWebPagePreview = true
		if i == len(parts)-1 {
			m.ReplyMarkup = keyboard
		}
		b.sendChattable(m)
	}
}

func (b *Bot) handleLastCommand(ctx context.Context, msg *tgbotapi.Message) {
	rec, err := b.planner.Latest(ctx, userKey(msg.From.ID))
	switch {
	case errors.Is(err, apierr.ErrNoPlan):
		b.send(msg.Chat.ID, "You have no plan yet. Try `/plan`.")
		return
	case err != nil:
		b.log.Error("failed to load latest record", "error", err)
		b.send(msg.Chat.ID, "❌ Could not load your plan.")
		return
	case rec.Plan == nil:
		b.send(msg.Chat.ID, fmt.Sprintf("No plan yet (state: %s). Try `/plan`.", rec.State))
		return
	}
	for _, part := range formatPlanMarkdown(*rec.Plan) {
		m := markdown(tgbotapi.NewMessage(msg.Chat.ID, part))
		m.DisableWebPagePreview = true
		b.sendChattable(m)
	}
}

func (b *Bot) handleMetricsRequest(ctx context.Context, msg *tgbotapi.Message) {
	if b.cfg.AdminID == 0 || msg.From.ID != b.cfg.AdminID {
		b.send(msg.Chat.ID, "⛔ *Access Denied*: Admin only.")
		return
	}
	if b.usage == nil {
		b.send(msg.Chat.ID, "❌ Metrics are not enabled.")
		return
	}
	usage, err := b.usage.GetDailyUsage(ctx, 7)
	if err != nil {
		b.log.Error("error fetching metrics", "error", err)
		b.send(msg.Chat.ID, "❌ Error fetching metrics.")
		return
	}
	b.send(msg.Chat.ID, formatMetrics(usage, metrics.GetSysHealth(b.cfg.DataDir)))
}

func formatMetrics(usage []metrics.DailyUsage, health metrics.SysHealth) string {
	var sb strings.Builder
	sb.WriteString("📊 *Usage & Health Report*\n\n")

	sb.WriteString("🗓 *Recent Generations*\n")
	if len(usage) == 0 {
		sb.WriteString("_No data yet_\n")
	}
	for _, d := range usage {
		fmt.Fprintf(&sb, "• *%s*: %d plans (%d from rules), %d tokens\n",
			d.Date, d.Generations, d.RuleFallbacks, d.TotalPrompt+d.TotalCompletion)
	}

	sb.WriteString("\n🧠 *System Health*\n")
	fmt.Fprintf(&sb, "• RAM: %dMB (Alloc) / %dMB (Sys)\n", health.AllocMB, health.SysMB)
	fmt.Fprintf(&sb, "• Goroutines: %d\n", health.Goroutines)
	fmt.Fprintf(&sb, "• Disk Data: %s\n", health.DataDiskSize)
	return sb.String()
}

func (b *Bot) sendAdminAlert(text string) {
	if b.cfg.AdminID == 0 {
		return
	}
	b.send(b.cfg.AdminID, text)
}

func markdown(m tgbotapi.MessageConfig) tgbotapi.MessageConfig {
	m.ParseMode = tgbotapi.ModeMarkdown
	return m
}

func (b *Bot) send(chatID int64, text string) {
	b.sendChattable(markdown(tgbotapi.NewMessage(chatID, text)))
}

func (b *Bot) sendChattable(c tgbotapi.Chattable) {
	if _, err := b.api.Send(c); err != nil {
		b.log.Warn("failed to send telegram message", "error", err)
	}
}
