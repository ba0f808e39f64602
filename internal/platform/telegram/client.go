package telegram

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client posts operational alerts to a Telegram chat.
type Client struct {
	token   string
	chatID  string
	baseURL string
	client  *http.Client
}

func NewClient(token, chatID string) *Client {
	return &Client{
		token:   token,
		chatID:  chatID,
		baseURL: "https://api.telegram.org",
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Enabled reports whether both bot token and chat id are configured.
func (c *Client) Enabled() bool {
	return c != nil && c.token != "" && c.chatID != ""
}

func (c *Client) SendAlert(ctx context.Context, msg string) error {
	if !c.Enabled() {
		return nil
	}
	apiURL := fmt.Sprintf("%s/bot%s/sendMessage", c.baseURL, c.token)
	vals := url.Values{}
	vals.Set("chat_id", c.chatID)
	vals.Set("text", "ERROR: "+msg)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, strings.NewReader(vals.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram: unexpected status code: %d", resp.StatusCode)
	}
	return nil
}
