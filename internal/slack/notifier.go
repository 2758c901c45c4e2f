package slack

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/slack-go/slack"
)

// Notifier posts messages to one configured channel
type Notifier struct {
	client   *slack.Client
	channel  string
	resolver *ChannelResolver
}

// NotifierOption customizes the Slack client
type NotifierOption = slack.Option

// NewNotifier creates a notifier for the given bot token and channel.
// The channel may be a name or an id.
func NewNotifier(botToken, channel, proxyURL string, options ...NotifierOption) (*Notifier, error) {
	if botToken == "" {
		return nil, fmt.Errorf("slack bot token is empty")
	}
	if channel == "" {
		return nil, fmt.Errorf("slack channel is empty")
	}

	opts := []slack.Option{slack.OptionDebug(false)}
	if proxyURL != "" {
		parsed, err := url.Parse(proxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL: %w", err)
		}
		opts = append(opts, slack.OptionHTTPClient(&http.Client{
			Transport: &http.Transport{Proxy: http.ProxyURL(parsed)},
		}))
		log.Printf("SlackNotifier: Using proxy: %s", proxyURL)
	}
	opts = append(opts, options...)

	client := slack.New(botToken, opts...)
	return &Notifier{
		client:   client,
		channel:  channel,
		resolver: NewChannelResolver(client),
	}, nil
}

// Channel returns the configured channel name or id
func (n *Notifier) Channel() string {
	return n.channel
}

// Post sends a message with an optional block layout and returns its
// timestamp. text is the notification fallback when blocks are given.
func (n *Notifier) Post(ctx context.Context, text string, blocks ...slack.Block) (string, error) {
	channelID, err := n.resolver.ResolveChannel(ctx, n.channel)
	if err != nil {
		return "", err
	}

	opts := []slack.MsgOption{slack.MsgOptionText(text, false)}
	if len(blocks) > 0 {
		opts = append(opts, slack.MsgOptionBlocks(blocks...))
	}

	_, ts, err := n.client.PostMessageContext(ctx, channelID, opts...)
	if err != nil {
		// A renamed or archived channel must be looked up again next time
		if isStaleChannelError(err) {
			n.resolver.ClearCache()
		}
		return "", fmt.Errorf("failed to post to %s: %w", n.channel, err)
	}
	return ts, nil
}

func isStaleChannelError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "channel_not_found") || strings.Contains(msg, "is_archived")
}

// Close releases background resources
func (n *Notifier) Close() {
	n.resolver.Close()
}
