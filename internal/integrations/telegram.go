package integrations

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// TelegramClient represents telegram client.
type TelegramClient struct {
	token  string
	client *http.Client
}

// NewTelegramClient creates telegram client.
func NewTelegramClient(token string) *TelegramClient {
	return &TelegramClient{
		token:  token,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// SendMessage handles send message.
func (t *TelegramClient) SendMessage(chatID int64, text string) error {
	return t.post("sendMessage", map[string]interface{}{
		"chat_id": chatID,
		"text":    text,
	})
}

// post handles internal post behavior.
func (t *TelegramClient) post(method string, payload map[string]interface{}) error {
	body, _ := json.Marshal(payload)
	url := fmt.Sprintf("https://api.telegram.org/bot%s/%s", t.token, method)
	resp, err := t.client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("telegram %s status %d", method, resp.StatusCode)
	}
	return nil
}
