package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const (
	colorSuccess = 3066993  // green
	colorFailure = 15158332 // red
)

// DiscordNotifier posts ingestion reports to a Discord webhook.
type DiscordNotifier struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordNotifier creates a DiscordNotifier with the given webhook URL.
func NewDiscordNotifier(webhookURL string) *DiscordNotifier {
	return &DiscordNotifier{
		webhookURL: webhookURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type discordEmbed struct {
	Title  string         `json:"title"`
	URL    string         `json:"url"`
	Color  int            `json:"color"`
	Fields []discordField `json:"fields"`
	Footer *discordFooter `json:"footer,omitempty"`
}

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordFooter struct {
	Text string `json:"text"`
}

type discordPayload struct {
	Embeds []discordEmbed `json:"embeds"`
}

// BuildDiscordPayload creates the embed message for a report.
func BuildDiscordPayload(r Report) discordPayload {
	embed := discordEmbed{
		Title:  headline(r),
		URL:    r.RepoURL,
		Footer: &discordFooter{Text: "dionysus - " + r.ProjectID},
	}
	if r.Succeeded {
		embed.Color = colorSuccess
		embed.Fields = []discordField{
			{Name: "Indexed", Value: FormatCounts(r.Files, r.Commits), Inline: true},
			{Name: "Took", Value: FormatDuration(r.Duration), Inline: true},
		}
	} else {
		embed.Color = colorFailure
		embed.Fields = []discordField{{Name: "Error", Value: r.Error}}
	}
	return discordPayload{Embeds: []discordEmbed{embed}}
}

// Notify posts the report. Callers wrap this with retry logic if needed.
func (d *DiscordNotifier) Notify(ctx context.Context, r Report) error {
	body, err := json.Marshal(BuildDiscordPayload(r))
	if err != nil {
		return fmt.Errorf("marshaling discord payload: %w", err)
	}
	return postJSON(ctx, d.client, d.webhookURL, "discord", body)
}
