// Package notify tells the support team about new member messages: a Slack
// incoming webhook plus an optional Web Push fanout to admin browsers,
// throttled per member so a burst of messages does not flood the channel.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/Frog-Creator-Production-Inc/frog-members-hatchup-sub002/internal/logger"
	"github.com/Frog-Creator-Production-Inc/frog-members-hatchup-sub002/internal/model"
)

const messagePreviewLimit = 200

// AdminDirectory lists the push fanout targets.
type AdminDirectory interface {
	ListAdminIDs(ctx context.Context) ([]string, error)
}

// Pusher delivers a Web Push notification to one user. Nil disables push.
type Pusher interface {
	Notify(ctx context.Context, userID, title, body string, data map[string]string)
}

// Dispatcher is best-effort end to end: every failure is logged and
// swallowed, chat delivery never depends on notifications.
type Dispatcher struct {
	webhookURL string
	httpClient *http.Client
	limiter    *KeyedLimiter
	admins     AdminDirectory
	pusher     Pusher
}

// NewDispatcher builds a dispatcher. Empty webhookURL disables Slack; nil
// admins or pusher disables push fanout.
func NewDispatcher(webhookURL string, limiter *KeyedLimiter, admins AdminDirectory, pusher Pusher) *Dispatcher {
	return &Dispatcher{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    limiter,
		admins:     admins,
		pusher:     pusher,
	}
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Title  string       `json:"title"`
	Text   string       `json:"text"`
	Fields []slackField `json:"fields"`
}

type slackPayload struct {
	Text        string            `json:"text"`
	Attachments []slackAttachment `json:"attachments,omitempty"`
}

// NotifyNewMessage dispatches for one member message, at most once per
// sender per window. Called from a goroutine on the send path.
func (d *Dispatcher) NotifyNewMessage(ctx context.Context, senderID string, m *model.ChatMessage) {
	if !d.limiter.Allow(senderID) {
		return
	}
	d.postSlack(ctx, senderID, m)
	d.pushAdmins(ctx, senderID, m)
}

func (d *Dispatcher) postSlack(ctx context.Context, senderID string, m *model.ChatMessage) {
	if d.webhookURL == "" {
		return
	}
	sender := senderID
	if m.Sender != nil {
		sender = m.Sender.DisplayName()
	}
	payload := slackPayload{
		Text: "新しいチャットメッセージが届きました",
		Attachments: []slackAttachment{{
			Color: "#36a64f",
			Title: sender,
			Text:  preview(m.Content),
			Fields: []slackField{
				{Title: "User ID", Value: senderID, Short: true},
				{Title: "Session ID", Value: m.SessionID, Short: true},
			},
		}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		logger.Errorf("notify: slack marshal: %v", err)
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		logger.Errorf("notify: slack request: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := d.httpClient.Do(req)
	if err != nil {
		logger.Errorf("notify: slack post: %v", err)
		return
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		logger.Errorf("notify: slack post: %d", resp.StatusCode)
	}
}

func (d *Dispatcher) pushAdmins(ctx context.Context, senderID string, m *model.ChatMessage) {
	if d.admins == nil || d.pusher == nil {
		return
	}
	ids, err := d.admins.ListAdminIDs(ctx)
	if err != nil {
		logger.Errorf("notify: list admins: %v", err)
		return
	}
	data := map[string]string{"session_id": m.SessionID, "user_id": senderID}
	for _, id := range ids {
		d.pusher.Notify(ctx, id, "新しいチャットメッセージ", preview(m.Content), data)
	}
}

func preview(content string) string {
	r := []rune(content)
	if len(r) <= messagePreviewLimit {
		return content
	}
	return string(r[:messagePreviewLimit]) + "…"
}
