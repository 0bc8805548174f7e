package notifier

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
)

const embedColor = 0x213997

var ErrInvalidWebhookURL = errors.New("invalid discord webhook url")

var _ Notifier = (*Discord)(nil)

// Discord posts an embed per release to a channel webhook.
type Discord struct {
	session   *discordgo.Session
	webhookID string
	token     string
	cdnURL    string
	attempts  int
	interval  time.Duration
}

func NewDiscord(webhookURL, cdnURL string, attempts int, interval time.Duration) (*Discord, error) {
	id, token, err := parseWebhookURL(webhookURL)
	if err != nil {
		return nil, err
	}

	session, err := discordgo.New("")
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}

	if attempts < 1 {
		attempts = 1
	}

	return &Discord{
		session:   session,
		webhookID: id,
		token:     token,
		cdnURL:    cdnURL,
		attempts:  attempts,
		interval:  interval,
	}, nil
}

// parseWebhookURL extracts the id and token from
// https://discord.com/api/webhooks/<id>/<token>.
func parseWebhookURL(raw string) (string, string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", ErrInvalidWebhookURL, err)
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+2 < len(parts); i++ {
		if parts[i] == "webhooks" && parts[i+1] != "" && parts[i+2] != "" {
			return parts[i+1], parts[i+2], nil
		}
	}

	return "", "", fmt.Errorf("%w: %q", ErrInvalidWebhookURL, u.Redacted())
}

func (d *Discord) embed(release Release) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       release.PluginName,
		Description: release.Description,
		Color:       embedColor,
		Author: &discordgo.MessageEmbedAuthor{
			Name:    release.Author,
			URL:     fmt.Sprintf("https://github.com/%s/%s", release.Author, release.PluginName),
			IconURL: d.cdnURL + "SDHomeBrewwwww.png",
		},
		Thumbnail: &discordgo.MessageEmbedThumbnail{URL: release.ImageURL},
		Footer:    &discordgo.MessageEmbedFooter{Text: "Version " + release.VersionName},
	}
}

func (d *Discord) Announce(ctx context.Context, release Release) {
	params := &discordgo.WebhookParams{
		Embeds: []*discordgo.MessageEmbed{d.embed(release)},
	}

	b := backoff.NewExponentialBackOff()
	if d.interval > 0 {
		b.InitialInterval = d.interval
	}
	b.MaxElapsedTime = 0

	operation := func() error {
		_, err := d.session.WebhookExecute(d.webhookID, d.token, false, params, discordgo.WithContext(ctx))
		return err
	}

	//nolint:gosec // attempts is at least one
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(d.attempts-1)), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		log.Error().
			Err(err).
			Str("plugin", release.PluginName).
			Str("version", release.VersionName).
			Msg("failed to post release announcement to discord")

		return
	}

	log.Info().
		Str("plugin", release.PluginName).
		Str("version", release.VersionName).
		Msg("release announced on discord")
}
