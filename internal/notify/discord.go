package notify

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
	"github.com/sirupsen/logrus"

	"waiver-wire/internal/domain"
)

const (
	colorResults  = 0x2ECC71
	colorNoClaims = 0x95A5A6
	maxFieldValue = 1024
)

// DiscordSink posts one results embed per completed waiver run to a Discord
// channel webhook. Other event types are ignored.
type DiscordSink struct {
	session   *discordgo.Session
	webhookID string
	token     string
	log       logrus.FieldLogger
}

// NewDiscordSink creates a sink from a webhook URL of the form
// https://discord.com/api/webhooks/{id}/{token}.
func NewDiscordSink(webhookURL string, logger logrus.FieldLogger) (*DiscordSink, error) {
	id, token, err := parseWebhookURL(webhookURL)
	if err != nil {
		return nil, err
	}

	// Webhook execution needs no bot token.
	session, err := discordgo.New("")
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}

	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &DiscordSink{
		session:   session,
		webhookID: id,
		token:     token,
		log:       logger.WithField("component", "discord"),
	}, nil
}

func parseWebhookURL(raw string) (string, string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("parse webhook url: %w", err)
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+2 < len(parts); i++ {
		if parts[i] == "webhooks" && parts[i+1] != "" && parts[i+2] != "" {
			return parts[i+1], parts[i+2], nil
		}
	}
	return "", "", fmt.Errorf("webhook url missing /webhooks/{id}/{token}: %s", u.Redacted())
}

// Publish sends an embed for every WAIVER_RUN_COMPLETED event.
func (d *DiscordSink) Publish(_ context.Context, events []domain.WaiverEvent) error {
	for _, e := range events {
		if e.Type != domain.EventWaiverRunCompleted || e.Summary == nil {
			continue
		}

		params := &discordgo.WebhookParams{
			Username: "Waiver Wire",
			Embeds:   []*discordgo.MessageEmbed{buildRunEmbed(e)},
		}
		if _, err := d.session.WebhookExecute(d.webhookID, d.token, false, params); err != nil {
			return fmt.Errorf("execute webhook: %w", err)
		}
		d.log.WithFields(logrus.Fields{"league_id": e.LeagueID, "run_id": e.RunID}).Debug("posted waiver results")
	}
	return nil
}

// buildRunEmbed creates a rich embed for a run summary
func buildRunEmbed(e domain.WaiverEvent) *discordgo.MessageEmbed {
	s := e.Summary

	embed := &discordgo.MessageEmbed{
		Title: fmt.Sprintf("Waiver Results: %s", e.LeagueID),
		Color: colorResults,
		Description: fmt.Sprintf("**%d processed | %d successful | %d failed**",
			s.Processed, s.Successful, s.Failed),
		Fields: []*discordgo.MessageEmbedField{},
		Footer: &discordgo.MessageEmbedFooter{Text: "Run " + e.RunID},
	}
	if !e.OccurredAt.IsZero() {
		embed.Timestamp = e.OccurredAt.UTC().Format("2006-01-02T15:04:05Z07:00")
	}
	if s.Processed == 0 {
		embed.Color = colorNoClaims
		return embed
	}

	teamIDs := make([]string, 0, len(s.ByTeam))
	for id := range s.ByTeam {
		teamIDs = append(teamIDs, id)
	}
	sort.Strings(teamIDs)

	for _, id := range teamIDs {
		team := s.ByTeam[id]
		var sb strings.Builder
		for _, o := range team.Successful {
			sb.WriteString("+ " + claimLine(o) + "\n")
		}
		for _, o := range team.Failed {
			sb.WriteString(fmt.Sprintf("- %s (%s)\n", claimLine(o), o.Reason))
		}

		value := truncateField(sb.String())
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   fmt.Sprintf("%s (%d/%d)", id, len(team.Successful), len(team.Successful)+len(team.Failed)),
			Value:  value,
			Inline: false,
		})
	}

	return embed
}

func claimLine(o domain.ClaimOutcome) string {
	var parts []string
	if o.AddPlayerID != "" {
		if o.BidAmount > 0 {
			parts = append(parts, fmt.Sprintf("**%s** ($%d)", o.AddPlayerID, o.BidAmount))
		} else {
			parts = append(parts, fmt.Sprintf("**%s**", o.AddPlayerID))
		}
	}
	if o.DropPlayerID != "" {
		parts = append(parts, "drop "+o.DropPlayerID)
	}
	return strings.Join(parts, ", ")
}

// truncateField cuts value to maxFieldValue bytes on a rune boundary.
func truncateField(value string) string {
	if len(value) <= maxFieldValue {
		return value
	}
	cut := maxFieldValue - len("...")
	for cut > 0 && !utf8.RuneStart(value[cut]) {
		cut--
	}
	return value[:cut] + "..."
}
