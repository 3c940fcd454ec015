// MIT License
//
// Copyright (c) 2026 Kolin
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.
//
package sink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"catchall/internal/report"

	"github.com/bwmarrin/discordgo"
	"github.com/pterm/pterm"
)

// Discord message limits.
const (
	MaxContentRunes     = 2000
	MaxDescriptionRunes = 4096
)

var ErrInvalidWebhookURL = errors.New("invalid discord webhook URL")

// DiscordSink posts reports to a Discord webhook as an embed, with the inline
// body as message content and large bodies as a file.
type DiscordSink struct {
	session   *discordgo.Session
	webhookID string
	token     string
	logger    *pterm.Logger
}

// NewDiscordSink parses webhookURL (https://discord.com/api/webhooks/{id}/{token})
// and sends through client.
func NewDiscordSink(webhookURL string, client *http.Client, logger *pterm.Logger) (*DiscordSink, error) {
	id, token, err := ParseWebhookURL(webhookURL)
	if err != nil {
		return nil, err
	}

	session, err := discordgo.New("")
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	if client != nil {
		session.Client = client
	}
	session.ShouldRetryOnRateLimit = false
	session.MaxRestRetries = 0

	return &DiscordSink{
		session:   session,
		webhookID: id,
		token:     token,
		logger:    logger,
	}, nil
}

func (d *DiscordSink) Name() string {
	return "discord"
}

func (d *DiscordSink) Dispatch(ctx context.Context, rep *report.Report) error {
	params := BuildWebhookParams(rep)

	_, err := d.session.WebhookExecute(d.webhookID, d.token, false, params, discordgo.WithContext(ctx))
	if err != nil {
		return &DeliveryError{Sink: d.Name(), Err: err}
	}

	d.logger.Trace("Report delivered to Discord",
		d.logger.Args("request_id", rep.RequestID, "files", len(params.Files)))
	return nil
}

// BuildWebhookParams maps a report onto a webhook message, bounding every
// field to Discord's limits.
func BuildWebhookParams(rep *report.Report) *discordgo.WebhookParams {
	embed := &discordgo.MessageEmbed{
		Title:       rep.Title,
		Description: truncateRunes(rep.Description(), MaxDescriptionRunes),
		Color:       rep.Color,
		Timestamp:   rep.Timestamp.UTC().Format(time.RFC3339),
	}

	params := &discordgo.WebhookParams{
		Embeds: []*discordgo.MessageEmbed{embed},
	}

	switch {
	case rep.Content == "":
	case len([]rune(rep.Content)) <= MaxContentRunes:
		params.Content = rep.Content
	default:
		// fences push some bodies just past the content limit
		body := strings.TrimSuffix(strings.TrimPrefix(rep.Content, "```"), "```")
		params.Files = append(params.Files, &discordgo.File{
			Name:        report.AttachmentName,
			ContentType: "text/plain",
			Reader:      strings.NewReader(body),
		})
	}

	if rep.Attachment != nil {
		params.Files = append(params.Files, &discordgo.File{
			Name:        rep.Attachment.Name,
			ContentType: "text/plain",
			Reader:      bytes.NewReader(rep.Attachment.Data),
		})
	}

	return params
}

// webhookHosts are the hosts Discord serves webhooks from.
var webhookHosts = map[string]bool{
	"discord.com":           true,
	"ptb.discord.com":       true,
	"canary.discord.com":    true,
	"discordapp.com":        true,
	"ptb.discordapp.com":    true,
	"canary.discordapp.com": true,
}

// ParseWebhookURL extracts the webhook ID and token. Only Discord hosts are accepted.
func ParseWebhookURL(raw string) (id, token string, err error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidWebhookURL, err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return "", "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidWebhookURL, u.Scheme)
	}
	if host := strings.ToLower(u.Hostname()); !webhookHosts[host] {
		return "", "", fmt.Errorf("%w: host %q is not a discord host", ErrInvalidWebhookURL, u.Hostname())
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+2 < len(parts); i++ {
		if parts[i] == "webhooks" && parts[i+1] != "" && parts[i+2] != "" {
			return parts[i+1], parts[i+2], nil
		}
	}
	return "", "", fmt.Errorf("%w: expected .../webhooks/{id}/{token}", ErrInvalidWebhookURL)
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}
