package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	telegramAPIBase  = "https://api.telegram.org"
	telegramAttempts = 3
)

// Telegram 把风控告警和每日运行摘要推到运营群。无人值守运行时这是
// 操作员看到 HALT/PANIC/对账失败的第一现场, 所以发送失败要重试,
// 并把 Telegram 返回的 description 带回错误里。
type Telegram struct {
	botToken string
	chatID   string
	apiBase  string
	client   *http.Client
	sleep    func(time.Duration)
}

func NewTelegram(botToken, chatID string) *Telegram {
	return &Telegram{
		botToken: botToken,
		chatID:   chatID,
		apiBase:  telegramAPIBase,
		client:   &http.Client{Timeout: 15 * time.Second},
		sleep:    time.Sleep,
	}
}

// SendText 发送一条 Markdown 文本, 最多尝试 telegramAttempts 次,
// 每次失败按次数线性退避。
func (t *Telegram) SendText(text string) error {
	if t.botToken == "" || t.chatID == "" {
		return fmt.Errorf("telegram 配置不完整: 缺少 bot token 或 chat id")
	}
	payload, err := json.Marshal(map[string]any{
		"chat_id":    t.chatID,
		"text":       text,
		"parse_mode": "Markdown",
	})
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.botToken)

	var lastErr error
	for attempt := 1; attempt <= telegramAttempts; attempt++ {
		lastErr = t.post(url, payload)
		if lastErr == nil {
			return nil
		}
		if attempt < telegramAttempts {
			t.sleep(time.Duration(attempt) * time.Second)
		}
	}
	return fmt.Errorf("telegram 发送失败 (尝试 %d 次): %w", telegramAttempts, lastErr)
}

func (t *Telegram) post(url string, payload []byte) error {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 == 2 {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	// Telegram 的错误体里带 description, 比裸状态码好排查。
	var apiErr struct {
		Description string `json:"description"`
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Description != "" {
		return fmt.Errorf("telegram status=%d: %s", resp.StatusCode, apiErr.Description)
	}
	return fmt.Errorf("telegram status=%d", resp.StatusCode)
}

// SendStructured 渲染并发送统一格式消息。
func (t *Telegram) SendStructured(msg StructuredMessage) error {
	return t.SendText(msg.RenderMarkdown())
}
