package notifier

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"stacker/internal/logger"

	"github.com/tidwall/gjson"
)

// Telegram pushes bot events to a chat or channel.
type Telegram struct {
	BotToken string
	ChatID   string
	Client   *http.Client
}

func NewTelegram(botToken, chatID string) *Telegram {
	return &Telegram{BotToken: botToken, ChatID: chatID, Client: &http.Client{Timeout: 15 * time.Second}}
}

// Notify delivers text with up to 3 retries and swallows the final error.
func (t *Telegram) Notify(text string) {
	if err := t.send(text); err != nil {
		logger.Warnf("telegram notify failed: %v", err)
	}
}

func (t *Telegram) send(text string) error {
	if t.BotToken == "" || t.ChatID == "" {
		return fmt.Errorf("telegram config incomplete")
	}
	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.BotToken)

	payload := map[string]any{
		"chat_id":    t.ChatID,
		"text":       text,
		"parse_mode": "Markdown",
	}
	body, _ := json.Marshal(payload)

	var lastErr error
	for i := 0; i < 3; i++ {
		req, _ := http.NewRequest("POST", url, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		resp, err := t.Client.Do(req)
		if err != nil {
			lastErr = err
			time.Sleep(time.Duration(i+1) * time.Second)
			continue
		}
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode/100 == 2 && gjson.GetBytes(respBody, "ok").Bool() {
			return nil
		}
		lastErr = fmt.Errorf("telegram status=%d description=%s",
			resp.StatusCode, gjson.GetBytes(respBody, "description").String())
		time.Sleep(time.Duration(i+1) * time.Second)
	}
	return lastErr
}
