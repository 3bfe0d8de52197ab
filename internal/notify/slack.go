package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// SlackNotifier posts ingestion reports to a Slack webhook.
type SlackNotifier struct {
	webhookURL string
	client     *http.Client
}

// NewSlackNotifier creates a SlackNotifier with the given webhook URL.
func NewSlackNotifier(webhookURL string) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: webhookURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// slackBlock represents a Slack Block Kit block.
type slackBlock struct {
	Type string     `json:"type"`
	Text *slackText `json:"text,omitempty"`
}

// slackText represents a text object in Slack Block Kit.
type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type slackPayload struct {
	Blocks []slackBlock `json:"blocks"`
}

func mrkdwn(text string) slackBlock {
	return slackBlock{Type: "section", Text: &slackText{Type: "mrkdwn", Text: text}}
}

// BuildSlackPayload creates the Block Kit message for a report.
func BuildSlackPayload(r Report) slackPayload {
	blocks := []slackBlock{
		{Type: "header", Text: &slackText{Type: "plain_text", Text: headline(r)}},
		mrkdwn(fmt.Sprintf(":link: <%s|%s>", r.RepoURL, r.RepoURL)),
	}
	if r.Succeeded {
		blocks = append(blocks, mrkdwn(fmt.Sprintf("*Indexed:* %s in %s",
			FormatCounts(r.Files, r.Commits), FormatDuration(r.Duration))))
	} else {
		blocks = append(blocks, mrkdwn(fmt.Sprintf("*Error:*\n%s", r.Error)))
	}
	return slackPayload{Blocks: blocks}
}

// Notify posts the report, retrying once on failure.
func (s *SlackNotifier) Notify(ctx context.Context, r Report) error {
	body, err := json.Marshal(BuildSlackPayload(r))
	if err != nil {
		return fmt.Errorf("marshaling slack payload: %w", err)
	}

	if err := s.post(ctx, body); err != nil {
		slog.Debug("slack notify failed, retrying", "error", err)
		if err := s.post(ctx, body); err != nil {
			return fmt.Errorf("slack notify failed after retry: %w", err)
		}
	}
	return nil
}

func (s *SlackNotifier) post(ctx context.Context, body []byte) error {
	return postJSON(ctx, s.client, s.webhookURL, "slack", body)
}

// postJSON sends body to a webhook and treats any non-2xx status as failure.
func postJSON(ctx context.Context, client *http.Client, url, name string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s webhook returned %d: %s", name, resp.StatusCode, string(respBody))
	}
	return nil
}
