// Package telegram is a minimal Bot API client over net/http covering the
// calls this service makes: plain messages, message edits, quiz polls,
// callback acks, and webhook registration.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.telegram.org"

type Client struct {
	http    *http.Client
	baseURL string
	token   string
}

type Options struct {
	Token   string
	BaseURL string
	HTTP    *http.Client
}

func New(opts Options) (*Client, error) {
	token := strings.TrimSpace(opts.Token)
	if token == "" {
		return nil, fmt.Errorf("telegram token is required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpClient := opts.HTTP
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{http: httpClient, baseURL: baseURL, token: token}, nil
}

type apiResponse struct {
	OK          bool                `json:"ok"`
	ErrorCode   int                 `json:"error_code,omitempty"`
	Description string              `json:"description,omitempty"`
	Parameters  *responseParameters `json:"parameters,omitempty"`
	Result      json.RawMessage     `json:"result,omitempty"`
}

type responseParameters struct {
	RetryAfter      int   `json:"retry_after,omitempty"`
	MigrateToChatID int64 `json:"migrate_to_chat_id,omitempty"`
}

// call posts a JSON request to a Bot API method and decodes the result into
// out (which may be nil for fire-and-forget methods).
func (c *Client) call(ctx context.Context, method string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram %s: encode request: %w", method, err)
	}
	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	raw, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()

	var parsed apiResponse
	_ = json.Unmarshal(raw, &parsed)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !parsed.OK {
		reqErr := &RequestError{
			StatusCode:  resp.StatusCode,
			ErrorCode:   parsed.ErrorCode,
			Description: parsed.Description,
			Body:        strings.TrimSpace(string(raw)),
		}
		if parsed.Parameters != nil {
			reqErr.RetryAfter = parsed.Parameters.RetryAfter
		}
		return reqErr
	}
	if out != nil && len(parsed.Result) > 0 {
		if err := json.Unmarshal(parsed.Result, out); err != nil {
			return fmt.Errorf("telegram %s: decode result: %w", method, err)
		}
	}
	return nil
}

func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var user User
	if err := c.call(ctx, "getMe", struct{}{}, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

type setWebhookRequest struct {
	URL string `json:"url"`
}

func (c *Client) SetWebhook(ctx context.Context, url string) error {
	url = strings.TrimSpace(url)
	if url == "" {
		return fmt.Errorf("webhook url is required")
	}
	return c.call(ctx, "setWebhook", setWebhookRequest{URL: url}, nil)
}

type sendMessageRequest struct {
	ChatID                int64                 `json:"chat_id"`
	Text                  string                `json:"text"`
	ParseMode             string                `json:"parse_mode,omitempty"`
	DisableWebPagePreview bool                  `json:"disable_web_page_preview,omitempty"`
	ReplyMarkup           *InlineKeyboardMarkup `json:"reply_markup,omitempty"`
}

func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, opts SendOptions) (*Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		text = "(empty)"
	}
	var msg Message
	err := c.call(ctx, "sendMessage", sendMessageRequest{
		ChatID:                chatID,
		Text:                  text,
		ParseMode:             opts.ParseMode,
		DisableWebPagePreview: opts.DisableWebPagePreview,
		ReplyMarkup:           opts.ReplyMarkup,
	}, &msg)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

type editMessageTextRequest struct {
	ChatID      int64                 `json:"chat_id"`
	MessageID   int64                 `json:"message_id"`
	Text        string                `json:"text"`
	ParseMode   string                `json:"parse_mode,omitempty"`
	ReplyMarkup *InlineKeyboardMarkup `json:"reply_markup,omitempty"`
}

func (c *Client) EditMessageText(ctx context.Context, chatID, messageID int64, text string, opts SendOptions) (*Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		text = "(empty)"
	}
	var msg Message
	err := c.call(ctx, "editMessageText", editMessageTextRequest{
		ChatID:      chatID,
		MessageID:   messageID,
		Text:        text,
		ParseMode:   opts.ParseMode,
		ReplyMarkup: opts.ReplyMarkup,
	}, &msg)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

type sendPollRequest struct {
	ChatID          int64    `json:"chat_id"`
	Question        string   `json:"question"`
	Options         []string `json:"options"`
	Type            string   `json:"type"`
	CorrectOptionID int      `json:"correct_option_id"`
	IsAnonymous     bool     `json:"is_anonymous"`
	Explanation     string   `json:"explanation,omitempty"`
}

func (c *Client) SendPoll(ctx context.Context, poll QuizPoll) (*Message, error) {
	var msg Message
	err := c.call(ctx, "sendPoll", sendPollRequest{
		ChatID:          poll.ChatID,
		Question:        poll.Question,
		Options:         poll.Options,
		Type:            "quiz",
		CorrectOptionID: poll.CorrectID,
		IsAnonymous:     poll.Anonymous,
		Explanation:     poll.Explanation,
	}, &msg)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

type answerCallbackQueryRequest struct {
	CallbackQueryID string `json:"callback_query_id"`
}

func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackID string) error {
	callbackID = strings.TrimSpace(callbackID)
	if callbackID == "" {
		return fmt.Errorf("callback query id is required")
	}
	return c.call(ctx, "answerCallbackQuery", answerCallbackQueryRequest{CallbackQueryID: callbackID}, nil)
}
