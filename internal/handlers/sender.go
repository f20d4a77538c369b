package handlers

import (
	"context"
	"log"
	"strings"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
)

// TelegramAPI is the slice of the bot surface the controller uses; *bot.Bot
// satisfies it, tests use a recorder.
type TelegramAPI interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*tgmodels.Message, error)
	EditMessageText(ctx context.Context, params *bot.EditMessageTextParams) (*tgmodels.Message, error)
	DeleteMessage(ctx context.Context, params *bot.DeleteMessageParams) (bool, error)
	AnswerCallbackQuery(ctx context.Context, params *bot.AnswerCallbackQueryParams) (bool, error)
}

type Sender struct {
	api      TelegramAPI
	maxRetry int
}

func NewSender(api TelegramAPI) *Sender {
	return &Sender{api: api, maxRetry: 2}
}

func (s *Sender) SendWithRetry(ctx context.Context, params *bot.SendMessageParams) (*tgmodels.Message, error) {
	var lastErr error
	for attempt := 0; attempt < s.maxRetry; attempt++ {
		msg, err := s.api.SendMessage(ctx, params)
		if err == nil {
			return msg, nil
		}
		lastErr = err
	}
	log.Printf("[SENDER] Failed to send to %v: %v", params.ChatID, lastErr)
	return nil, lastErr
}

// EditText tolerates edits of messages that are already gone or unchanged;
// the timer, not the displayed countdown, is the source of truth.
func (s *Sender) EditText(ctx context.Context, params *bot.EditMessageTextParams) error {
	_, err := s.api.EditMessageText(ctx, params)
	if err == nil || isMessageNotFoundError(err) {
		return nil
	}
	return err
}

func (s *Sender) Delete(ctx context.Context, chatID int64, messageID int) {
	if messageID == 0 {
		return
	}
	_, err := s.api.DeleteMessage(ctx, &bot.DeleteMessageParams{
		ChatID:    chatID,
		MessageID: messageID,
	})
	if err != nil && !isMessageNotFoundError(err) {
		log.Printf("[SENDER] Failed to delete message %d in %d: %v", messageID, chatID, err)
	}
}

func isMessageNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "message to edit not found") ||
		strings.Contains(errStr, "message to delete not found") ||
		strings.Contains(errStr, "message is not modified") ||
		strings.Contains(errStr, "MESSAGE_ID_INVALID")
}
