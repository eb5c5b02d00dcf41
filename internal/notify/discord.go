package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"
	"unicode/utf8"
)

// Discord caps embed titles at 256 and descriptions at 4096 characters.
const (
	discordTitleMax = 256
	discordBodyMax  = 4096
	discordUsername = "arbscan"
	discordColor    = 0x2ecc71
)

type discordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
	Timestamp   string `json:"timestamp"`
}

type discordMessage struct {
	Username        string              `json:"username"`
	Embeds          []discordEmbed      `json:"embeds"`
	AllowedMentions map[string][]string `json:"allowed_mentions"`
}

// DiscordSender delivers notifications as a single embed through a webhook.
// Mentions in market titles are never expanded.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
	now        func() time.Time
}

// NewDiscordSender creates a sender for webhookURL.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		now:        time.Now,
	}
}

func (d *DiscordSender) Send(ctx context.Context, title, message string) error {
	msg := discordMessage{
		Username: discordUsername,
		Embeds: []discordEmbed{{
			Title:       truncateRunes(title, discordTitleMax),
			Description: truncateRunes(message, discordBodyMax),
			Color:       discordColor,
			Timestamp:   d.now().UTC().Format(time.RFC3339),
		}},
		AllowedMentions: map[string][]string{"parse": {}},
	}
	if err := postJSON(ctx, d.client, d.webhookURL, msg); err != nil {
		return fmt.Errorf("discord: %w", err)
	}
	return nil
}

func (d *DiscordSender) Name() string { return "discord" }

// truncateRunes cuts s to at most n runes, marking the cut with an ellipsis.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}
