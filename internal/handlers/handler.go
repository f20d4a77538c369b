package handlers

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gator-labs/chomp-bot/internal/auth"
	"github.com/gator-labs/chomp-bot/internal/fsm"
	"github.com/gator-labs/chomp-bot/internal/models"
	"github.com/gator-labs/chomp-bot/internal/session"
	"github.com/gator-labs/chomp-bot/internal/timer"
	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
)

const (
	cbMenuAnswer        = "menu.answer"
	cbMenuReveal        = "menu.reveal"
	cbRevealConfirm     = "reveal.confirm"
	cbRevealCancel      = "reveal.cancel"
	cbFirstOrderPrefix  = "answering-first-order."
	cbSecondOrderPrefix = "answering-second-order."
)

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	otpPattern   = regexp.MustCompile(`^\d{6}$`)
)

// BackendClient is the Chomp backend surface the controller depends on.
type BackendClient interface {
	GetOrCreateUser(ctx context.Context, authToken string) (*models.User, bool, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetNextQuestion(ctx context.Context, userID string) (*models.Question, error)
	GetRevealCount(ctx context.Context, userID string) (int, error)
	SubmitAnswer(ctx context.Context, userID string, answer models.Answer) error
	SetSubscription(ctx context.Context, authToken string, subscribed bool) error
}

// OTPProvider issues email verification tickets and confirms codes.
type OTPProvider interface {
	CreateEmailVerification(ctx context.Context, email string) (string, error)
	VerifyOTP(ctx context.Context, verificationUUID, code string) error
}

type BotHandler struct {
	sender    *Sender
	backend   BackendClient
	otp       OTPProvider
	sessions  session.Store
	timers    *timer.Registry
	botToken  string
	webAppURL string
}

func NewBotHandler(
	api TelegramAPI,
	backend BackendClient,
	otp OTPProvider,
	sessions session.Store,
	timers *timer.Registry,
	botToken string,
	webAppURL string,
) *BotHandler {
	return &BotHandler{
		sender:    NewSender(api),
		backend:   backend,
		otp:       otp,
		sessions:  sessions,
		timers:    timers,
		botToken:  botToken,
		webAppURL: webAppURL,
	}
}

// HandleUpdate is the single entry point for every inbound event. All work
// for a user runs under that user's session lock, so a slow backend call
// for one user never blocks another.
func (h *BotHandler) HandleUpdate(ctx context.Context, _ *bot.Bot, update *tgmodels.Update) {
	defer h.recoverPanic(update)

	if update.Message != nil && update.Message.From != nil {
		msg := update.Message
		h.sessions.WithLock(msg.From.ID, func(sess *models.Session) {
			h.handleMessage(ctx, msg, sess)
		})
	} else if update.CallbackQuery != nil {
		cb := update.CallbackQuery
		h.sessions.WithLock(cb.From.ID, func(sess *models.Session) {
			h.handleCallback(ctx, cb, sess)
		})
	}
}

func (h *BotHandler) recoverPanic(update *tgmodels.Update) {
	if r := recover(); r != nil {
		log.Printf("[BOT] Recovered from panic: %v (update %d)", r, update.ID)
	}
}

func (h *BotHandler) handleMessage(ctx context.Context, msg *tgmodels.Message, sess *models.Session) {
	switch msg.Text {
	case "/start":
		h.handleStart(ctx, msg, sess)
	case "/unsubscribe":
		h.handleSubscription(ctx, msg, sess, false)
	case "/resubscribe":
		h.handleSubscription(ctx, msg, sess, true)
	default:
		h.handleFreeText(ctx, msg, sess)
	}
}

func (h *BotHandler) handleStart(ctx context.Context, msg *tgmodels.Message, sess *models.Session) {
	token, err := h.authTokenFor(msg.From)
	if err != nil {
		log.Printf("[BOT] Failed to build auth token for %d: %v", msg.From.ID, err)
		h.sendApology(ctx, msg.Chat.ID)
		return
	}

	user, created, err := h.backend.GetOrCreateUser(ctx, token)
	if err != nil {
		log.Printf("[BOT] Failed to get or create user %d: %v", msg.From.ID, err)
		h.sendApology(ctx, msg.Chat.ID)
		return
	}
	if created {
		log.Printf("[BOT] Created user %s for telegram id %d", user.ID, msg.From.ID)
	}

	sess.User = user
	sess.State = fsm.StateMenu
	h.sendMenu(ctx, msg.Chat.ID, "Welcome to Chomp! 🦷 Answer questions, estimate the crowd, reveal rewards.")
}

func (h *BotHandler) handleSubscription(ctx context.Context, msg *tgmodels.Message, sess *models.Session, subscribed bool) {
	token, err := h.authTokenFor(msg.From)
	if err == nil {
		err = h.backend.SetSubscription(ctx, token, subscribed)
	}
	if err != nil {
		log.Printf("[BOT] Failed to set subscription for %d: %v", msg.From.ID, err)
		h.sendApology(ctx, msg.Chat.ID)
		return
	}

	if sess.User != nil {
		sess.User.IsBotSubscriber = subscribed
	}

	text := "You won't receive notifications anymore. Send /resubscribe to turn them back on."
	if subscribed {
		text = "You're subscribed to notifications again! 🔔"
	}
	h.sender.SendWithRetry(ctx, &bot.SendMessageParams{ChatID: msg.Chat.ID, Text: text})
}

func (h *BotHandler) handleFreeText(ctx context.Context, msg *tgmodels.Message, sess *models.Session) {
	text := strings.TrimSpace(msg.Text)

	switch sess.State {
	case fsm.StateEmailCollection:
		h.handleEmailInput(ctx, msg.Chat.ID, text, sess)
	case fsm.StateEmailVerification:
		h.handleOTPInput(ctx, msg, text, sess)
	default:
		h.sendMenu(ctx, msg.Chat.ID, "Take a bite of the menu below 🍫")
	}
}

func (h *BotHandler) handleEmailInput(ctx context.Context, chatID int64, text string, sess *models.Session) {
	if !emailPattern.MatchString(text) {
		h.sender.SendWithRetry(ctx, &bot.SendMessageParams{
			ChatID: chatID,
			Text:   "That doesn't look like an email address. Please try again.",
		})
		return
	}

	verificationUUID, err := h.otp.CreateEmailVerification(ctx, text)
	if err != nil {
		log.Printf("[BOT] Failed to create email verification: %v", err)
		h.sendApology(ctx, chatID)
		return
	}

	sess.Verification = &models.EmailVerification{
		Email:            text,
		VerificationUUID: verificationUUID,
	}
	sess.State = fsm.StateEmailVerification

	h.sender.SendWithRetry(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   fmt.Sprintf("We sent a 6-digit code to %s. Enter it here to continue.", text),
	})
}

func (h *BotHandler) handleOTPInput(ctx context.Context, msg *tgmodels.Message, text string, sess *models.Session) {
	chatID := msg.Chat.ID

	if !otpPattern.MatchString(text) {
		h.sender.SendWithRetry(ctx, &bot.SendMessageParams{
			ChatID: chatID,
			Text:   "The code is 6 digits. Please check your inbox and try again.",
		})
		return
	}

	if sess.Verification == nil {
		h.sender.SendWithRetry(ctx, &bot.SendMessageParams{
			ChatID: chatID,
			Text:   "There's no pending verification for you. Send /start to begin again.",
		})
		return
	}

	if err := h.otp.VerifyOTP(ctx, sess.Verification.VerificationUUID, text); err != nil {
		log.Printf("[BOT] OTP verification failed for %d: %v", msg.From.ID, err)
		h.sender.SendWithRetry(ctx, &bot.SendMessageParams{
			ChatID: chatID,
			Text:   "That code didn't work. Please try again.",
		})
		return
	}

	sess.Verification.Verified = true

	// The permanent wallet-bound profile replaces the temporary user id
	// everywhere in this session.
	user, err := h.backend.GetUserByEmail(ctx, sess.Verification.Email)
	if err != nil {
		log.Printf("[BOT] Failed to fetch user by email: %v", err)
		h.sendApology(ctx, chatID)
		sess.State = fsm.StateMenu
		return
	}
	sess.User = user
	sess.Verification = nil
	sess.State = fsm.StateMenu

	h.sendLaunchLink(ctx, chatID, msg.From, "You're all set! 🎉 Open Chomp to reveal your answers.")
}

func (h *BotHandler) handleCallback(ctx context.Context, cb *tgmodels.CallbackQuery, sess *models.Session) {
	defer h.sender.api.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: cb.ID,
	})

	data := cb.Data
	switch {
	case data == cbMenuAnswer:
		h.handleAnswerRequested(ctx, cb, sess)
	case data == cbMenuReveal:
		h.handleRevealRequested(ctx, cb, sess)
	case data == cbRevealConfirm:
		h.handleRevealConfirmed(ctx, cb, sess)
	case data == cbRevealCancel:
		sess.State = fsm.StateMenu
		h.sendMenu(ctx, chatIDOf(cb), "No worries, your answers stay hidden for now.")
	case strings.HasPrefix(data, cbFirstOrderPrefix):
		h.handleFirstOrderAnswer(ctx, cb, sess)
	case strings.HasPrefix(data, cbSecondOrderPrefix):
		h.handleSecondOrderAnswer(ctx, cb, sess)
	}
}

func (h *BotHandler) handleAnswerRequested(ctx context.Context, cb *tgmodels.CallbackQuery, sess *models.Session) {
	chatID := chatIDOf(cb)
	if sess.User == nil {
		h.sender.SendWithRetry(ctx, &bot.SendMessageParams{ChatID: chatID, Text: "Send /start first so I know who you are."})
		return
	}

	question, err := h.backend.GetNextQuestion(ctx, sess.User.ID)
	if err != nil {
		log.Printf("[BOT] Failed to fetch next question for %s: %v", sess.User.ID, err)
		h.sendApology(ctx, chatID)
		return
	}
	if question == nil {
		h.sendMenu(ctx, chatID, "You've chomped through every question for now. Check back later! 🍽")
		return
	}

	keyboard := optionsKeyboard(question)
	msg, err := h.sender.SendWithRetry(ctx, &bot.SendMessageParams{
		ChatID:      chatID,
		Text:        questionText(question, question.Duration()),
		ReplyMarkup: keyboard,
	})
	if err != nil {
		h.sendApology(ctx, chatID)
		return
	}

	sess.Question = question
	sess.State = fsm.StateAwaitingFirstOrderAnswer
	sess.PromptMessageID = msg.ID

	userID := cb.From.ID
	questionID := question.ID
	promptID := msg.ID
	h.timers.Start(userID, question.Duration(),
		func(remaining time.Duration) {
			h.updateCountdown(chatID, promptID, question, keyboard, remaining)
		},
		func() {
			h.handleRoundExpired(userID, chatID, questionID)
		},
	)
}

// updateCountdown refreshes the countdown line. Failures are ignored: the
// displayed countdown is best-effort UI, the timer is authoritative.
func (h *BotHandler) updateCountdown(chatID int64, messageID int, question *models.Question, keyboard *tgmodels.InlineKeyboardMarkup, remaining time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	h.sender.EditText(ctx, &bot.EditMessageTextParams{
		ChatID:      chatID,
		MessageID:   messageID,
		Text:        questionText(question, remaining),
		ReplyMarkup: keyboard,
	})
}

// handleRoundExpired forces the user back to the menu once the countdown
// hits zero, removing the in-flight prompt. A late expiry that lost the
// race against an answer finds the session already moved on and does
// nothing.
func (h *BotHandler) handleRoundExpired(userID, chatID int64, questionID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	h.sessions.WithLock(userID, func(sess *models.Session) {
		if sess.State != fsm.StateAwaitingFirstOrderAnswer || sess.Question == nil || sess.Question.ID != questionID {
			return
		}

		h.sender.Delete(ctx, chatID, sess.PromptMessageID)
		sess.Question = nil
		sess.PromptMessageID = 0
		sess.State = fsm.StateMenu

		h.sendMenu(ctx, chatID, "⏰ Time's up! That one got away.")
	})
}

func (h *BotHandler) handleFirstOrderAnswer(ctx context.Context, cb *tgmodels.CallbackQuery, sess *models.Session) {
	chatID := chatIDOf(cb)
	if sess.State != fsm.StateAwaitingFirstOrderAnswer || sess.Question == nil {
		return
	}

	optionID, err := strconv.ParseInt(strings.TrimPrefix(cb.Data, cbFirstOrderPrefix), 10, 64)
	if err != nil {
		return
	}
	option := sess.Question.OptionByID(optionID)
	if option == nil {
		return
	}

	remaining, stopped := h.timers.Stop(cb.From.ID)
	elapsed := sess.Question.Duration() - remaining
	if !stopped && remaining == 0 {
		elapsed = sess.Question.Duration()
	}
	sess.AnswerElapsedMs = elapsed.Milliseconds()
	sess.State = fsm.StateAwaitingSecondOrderAnswer

	h.sender.EditText(ctx, &bot.EditMessageTextParams{
		ChatID:    chatID,
		MessageID: sess.PromptMessageID,
		Text: fmt.Sprintf("You chose: %s\n\nWhat percentage of people do you think also chose %q?",
			option.Option, option.Option),
		ReplyMarkup: confidenceKeyboard(optionID),
	})
}

func (h *BotHandler) handleSecondOrderAnswer(ctx context.Context, cb *tgmodels.CallbackQuery, sess *models.Session) {
	chatID := chatIDOf(cb)
	if sess.State != fsm.StateAwaitingSecondOrderAnswer || sess.Question == nil || sess.User == nil {
		return
	}

	parts := strings.Split(strings.TrimPrefix(cb.Data, cbSecondOrderPrefix), ".")
	if len(parts) != 2 {
		return
	}
	percentage, err := strconv.Atoi(parts[0])
	if err != nil || percentage < 0 || percentage > 100 {
		return
	}
	optionID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || sess.Question.OptionByID(optionID) == nil {
		return
	}

	answer := models.Answer{
		QuestionID:              sess.Question.ID,
		OptionID:                optionID,
		PercentageGiven:         percentage,
		TimeToAnswerMiliseconds: sess.AnswerElapsedMs,
		DeckID:                  sess.Question.DeckID,
	}

	submitErr := h.backend.SubmitAnswer(ctx, sess.User.ID, answer)

	h.timers.Clear(cb.From.ID)
	h.sender.Delete(ctx, chatID, sess.PromptMessageID)
	sess.Question = nil
	sess.PromptMessageID = 0
	sess.AnswerElapsedMs = 0
	sess.State = fsm.StateMenu

	if submitErr != nil {
		log.Printf("[BOT] Failed to submit answer for %s: %v", sess.User.ID, submitErr)
		h.sendApology(ctx, chatID)
		return
	}
	h.sendMenu(ctx, chatID, "Chomped! 🦷 Your answer is in.")
}

func (h *BotHandler) handleRevealRequested(ctx context.Context, cb *tgmodels.CallbackQuery, sess *models.Session) {
	chatID := chatIDOf(cb)
	if sess.User == nil {
		h.sender.SendWithRetry(ctx, &bot.SendMessageParams{ChatID: chatID, Text: "Send /start first so I know who you are."})
		return
	}

	count, err := h.backend.GetRevealCount(ctx, sess.User.ID)
	if err != nil {
		log.Printf("[BOT] Failed to fetch reveal count for %s: %v", sess.User.ID, err)
		h.sendApology(ctx, chatID)
		return
	}
	if count == 0 {
		h.sendMenu(ctx, chatID, "You have no questions ready to reveal yet. Keep chomping!")
		return
	}

	sess.State = fsm.StateRevealPrompt
	h.sender.SendWithRetry(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   fmt.Sprintf("You have %d questions ready to reveal. Reveal them now?", count),
		ReplyMarkup: &tgmodels.InlineKeyboardMarkup{
			InlineKeyboard: [][]tgmodels.InlineKeyboardButton{
				{
					{Text: "✅ Reveal", CallbackData: cbRevealConfirm},
					{Text: "❌ Not now", CallbackData: cbRevealCancel},
				},
			},
		},
	})
}

func (h *BotHandler) handleRevealConfirmed(ctx context.Context, cb *tgmodels.CallbackQuery, sess *models.Session) {
	chatID := chatIDOf(cb)
	if sess.State != fsm.StateRevealPrompt || sess.User == nil {
		return
	}

	if sess.User.HasWallet() {
		sess.State = fsm.StateMenu
		h.sendLaunchLink(ctx, chatID, &cb.From, "Open Chomp to claim your rewards 💰")
		return
	}

	sess.State = fsm.StateEmailCollection
	h.sender.SendWithRetry(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   "You need a wallet to reveal. Enter your email address and we'll set one up:",
	})
}

func (h *BotHandler) sendLaunchLink(ctx context.Context, chatID int64, from *tgmodels.User, text string) {
	launchURL := h.webAppURL
	if from != nil {
		if token, err := h.authTokenFor(from); err == nil {
			launchURL = h.webAppURL + "?telegramAuthToken=" + token
		}
	}

	h.sender.SendWithRetry(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
		ReplyMarkup: &tgmodels.InlineKeyboardMarkup{
			InlineKeyboard: [][]tgmodels.InlineKeyboardButton{
				{{Text: "🚀 Launch Chomp", URL: launchURL}},
			},
		},
	})
}

func (h *BotHandler) sendMenu(ctx context.Context, chatID int64, text string) {
	h.sender.SendWithRetry(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
		ReplyMarkup: &tgmodels.InlineKeyboardMarkup{
			InlineKeyboard: [][]tgmodels.InlineKeyboardButton{
				{{Text: "🍫 Answer questions", CallbackData: cbMenuAnswer}},
				{{Text: "🔍 Reveal answers", CallbackData: cbMenuReveal}},
				{{Text: "🚀 Launch Chomp", WebApp: &tgmodels.WebAppInfo{URL: h.webAppURL}}},
			},
		},
	})
}

func (h *BotHandler) sendApology(ctx context.Context, chatID int64) {
	h.sender.SendWithRetry(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   "Something went wrong on our side. Please try again in a moment 🙏",
	})
}

func (h *BotHandler) authTokenFor(from *tgmodels.User) (string, error) {
	payload := auth.NewTelegramPayload(from.ID, from.FirstName, from.LastName, from.Username)
	return auth.EncodeAuthToken(payload, h.botToken)
}

func chatIDOf(cb *tgmodels.CallbackQuery) int64 {
	if cb.Message.Message != nil {
		return cb.Message.Message.Chat.ID
	}
	return cb.From.ID
}

func questionText(q *models.Question, remaining time.Duration) string {
	seconds := int(remaining.Round(time.Second).Seconds())
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%s\n\n⏱ %ds left", q.Question, seconds)
}

// optionsKeyboard renders one button per option; binary questions keep
// their two options side by side, left option first. Callback payloads
// carry option ids, never option text.
func optionsKeyboard(q *models.Question) *tgmodels.InlineKeyboardMarkup {
	if q.Type == models.QuestionTypeBinary && len(q.Options) == 2 {
		left, right := q.Options[0], q.Options[1]
		if right.IsLeft {
			left, right = right, left
		}
		return &tgmodels.InlineKeyboardMarkup{
			InlineKeyboard: [][]tgmodels.InlineKeyboardButton{
				{
					{Text: left.Option, CallbackData: fmt.Sprintf("%s%d", cbFirstOrderPrefix, left.ID)},
					{Text: right.Option, CallbackData: fmt.Sprintf("%s%d", cbFirstOrderPrefix, right.ID)},
				},
			},
		}
	}

	rows := make([][]tgmodels.InlineKeyboardButton, 0, len(q.Options))
	for _, opt := range q.Options {
		rows = append(rows, []tgmodels.InlineKeyboardButton{
			{Text: opt.Option, CallbackData: fmt.Sprintf("%s%d", cbFirstOrderPrefix, opt.ID)},
		})
	}
	return &tgmodels.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// confidenceKeyboard renders 0-100% in steps of 10, bound to the chosen
// option id.
func confidenceKeyboard(optionID int64) *tgmodels.InlineKeyboardMarkup {
	var rows [][]tgmodels.InlineKeyboardButton
	var row []tgmodels.InlineKeyboardButton
	for p := 0; p <= 100; p += 10 {
		row = append(row, tgmodels.InlineKeyboardButton{
			Text:         fmt.Sprintf("%d%%", p),
			CallbackData: fmt.Sprintf("%s%d.%d", cbSecondOrderPrefix, p, optionID),
		})
		if len(row) == 4 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	return &tgmodels.InlineKeyboardMarkup{InlineKeyboard: rows}
}
