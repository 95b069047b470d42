package delivery

import (
	"context"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramClient delivers messages as Telegram chat messages. The
// recipient address is the numeric chat ID.
type TelegramClient struct {
	api telegramAPI
}

// NewTelegram creates a Telegram delivery client with the given bot token.
func NewTelegram(token string) (*TelegramClient, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	return &TelegramClient{api: api}, nil
}

// NewTelegramWithAPI creates a client over an existing API (useful for testing).
func NewTelegramWithAPI(api telegramAPI) *TelegramClient {
	return &TelegramClient{api: api}
}

// Send delivers one message to the chat named by msg.To.
func (c *TelegramClient) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	chatID, err := strconv.ParseInt(msg.To, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat ID %q: %w", msg.To, err)
	}

	m := tgbotapi.NewMessage(chatID, msg.Subject+"\n\n"+msg.Body)
	m.DisableWebPagePreview = true
	if _, err := c.api.Send(m); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}
