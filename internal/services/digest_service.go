package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/slack-go/slack"
	"github.com/zentinel/zentinel/internal/models"
	"github.com/zentinel/zentinel/internal/utils"
)

// ErrDigestDisabled is returned when no Slack channel is configured
var ErrDigestDisabled = errors.New("slack digest is not configured")

// digestMaxItems caps the problems listed in one digest
const digestMaxItems = 10

// DigestPoster posts a message to chat
type DigestPoster interface {
	Post(ctx context.Context, text string, blocks ...slack.Block) (string, error)
}

// DigestResult describes a posted digest
type DigestResult struct {
	Timestamp string `json:"ts"`
	Problems  int    `json:"problems"`
	Listed    int    `json:"listed"`
}

// DigestService posts a KPI summary of production problems to Slack
type DigestService struct {
	dashboards  *DashboardService
	poster      DigestPoster
	frontendURL string
}

// NewDigestService creates a digest service. poster may be nil, in which
// case Send returns ErrDigestDisabled.
func NewDigestService(dashboards *DashboardService, poster DigestPoster, frontendURL string) *DigestService {
	return &DigestService{
		dashboards:  dashboards,
		poster:      poster,
		frontendURL: strings.TrimSuffix(frontendURL, "/"),
	}
}

// Enabled reports whether digests can be sent
func (s *DigestService) Enabled() bool {
	return s.poster != nil
}

// Send builds the dashboard for the filter and posts its production digest
func (s *DigestService) Send(ctx context.Context, f FilterState) (*DigestResult, error) {
	if s.poster == nil {
		return nil, ErrDigestDisabled
	}

	d := s.dashboards.Build(ctx, f)
	text, blocks := BuildDigest(d, models.Severity(s.dashboards.config.HighSeverity), s.frontendURL)

	ts, err := s.poster.Post(ctx, text, blocks...)
	if err != nil {
		return nil, fmt.Errorf("failed to post digest: %w", err)
	}

	listed := len(d.Production)
	if listed > digestMaxItems {
		listed = digestMaxItems
	}
	log.Printf("DigestService: Posted digest with %d production problems", len(d.Production))
	return &DigestResult{Timestamp: ts, Problems: len(d.Production), Listed: listed}, nil
}

// BuildDigest renders the fallback text and Block Kit layout of a digest
func BuildDigest(d *Dashboard, high models.Severity, frontendURL string) (string, []slack.Block) {
	prod := ComputeStats(d.Production, d.GeneratedAt, high, 1)

	text := fmt.Sprintf("Zentinel: %s production problems, %s high/disaster, %s acknowledged",
		utils.FormatNumber(prod.Total), utils.FormatNumber(prod.HighCount), utils.FormatNumber(prod.Acknowledged))

	blocks := []slack.Block{
		slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType, "Zentinel production digest", false, false)),
		slack.NewSectionBlock(nil, []*slack.TextBlockObject{
			slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("*Total*\n%s", utils.FormatNumber(prod.Total)), false, false),
			slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("*High/Disaster*\n%s", utils.FormatNumber(prod.HighCount)), false, false),
			slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("*Acknowledged*\n%s", utils.FormatNumber(prod.Acknowledged)), false, false),
			slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("*Avg duration*\n%s", utils.FormatAge(prod.AvgDuration)), false, false),
		}, nil),
	}

	if len(d.Production) == 0 {
		blocks = append(blocks, slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, ":white_check_mark: No production problems.", false, false), nil, nil))
		return text, blocks
	}

	blocks = append(blocks, slack.NewDividerBlock())

	top := append([]EnrichedProblem(nil), d.Production...)
	SortProblems(top, SortBySeverity, SortDesc)
	if len(top) > digestMaxItems {
		top = top[:digestMaxItems]
	}

	var lines []string
	for _, p := range top {
		name := utils.TruncateText(p.Name, 120)
		if frontendURL != "" {
			name = fmt.Sprintf("<%s|%s>", HistoryURL(frontendURL, p), escapeSlack(name))
		} else {
			name = escapeSlack(name)
		}
		ack := ""
		if p.Acknowledged {
			ack = " :heavy_check_mark:"
		}
		lines = append(lines, fmt.Sprintf("%s *%s* %s (%s)%s",
			p.Severity.Emoji(), escapeSlack(p.HostName), name, utils.FormatAge(p.Age), ack))
	}
	blocks = append(blocks, slack.NewSectionBlock(
		slack.NewTextBlockObject(slack.MarkdownType, strings.Join(lines, "\n"), false, false), nil, nil))

	if rest := len(d.Production) - len(top); rest > 0 {
		blocks = append(blocks, slack.NewContextBlock("",
			slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("…and %d more", rest), false, false)))
	}

	return text, blocks
}

// HistoryURL links to the event history page of a problem
func HistoryURL(frontendURL string, p EnrichedProblem) string {
	return fmt.Sprintf("%s/tr_events.php?triggerid=%s&eventid=%s", strings.TrimSuffix(frontendURL, "/"), p.TriggerID, p.EventID)
}

func escapeSlack(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}
