package slack

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/slack-go/slack"
	"github.com/zentinel/zentinel/internal/cache"
)

// channelCacheTTL bounds how long a name to id mapping is trusted
const channelCacheTTL = time.Hour

// ChannelResolver resolves channel names to IDs
type ChannelResolver struct {
	client *slack.Client
	cache  *cache.Cache[string] // name -> id
}

// NewChannelResolver creates a new channel resolver
func NewChannelResolver(client *slack.Client) *ChannelResolver {
	return &ChannelResolver{
		client: client,
		cache:  cache.New[string](channelCacheTTL, 10*time.Minute),
	}
}

// ResolveChannel resolves a channel name or ID to a channel ID
// Accepts:
// - Channel ID (C01234567890)
// - Channel name (#ops-digest or ops-digest)
func (r *ChannelResolver) ResolveChannel(ctx context.Context, nameOrID string) (string, error) {
	if nameOrID == "" {
		return "", fmt.Errorf("channel name/ID is empty")
	}

	if isChannelID(nameOrID) {
		return nameOrID, nil
	}

	channelName := strings.TrimPrefix(nameOrID, "#")

	if id, ok := r.cache.Get(channelName); ok {
		return id, nil
	}

	id, err := r.lookupChannel(ctx, channelName)
	if err != nil {
		return "", err
	}

	r.cache.Set(channelName, id)
	log.Printf("Resolved channel '%s' to '%s'", channelName, id)
	return id, nil
}

// lookupChannel pages through public, then private channels
func (r *ChannelResolver) lookupChannel(ctx context.Context, name string) (string, error) {
	for _, kind := range []string{"public_channel", "private_channel"} {
		cursor := ""
		for {
			channels, next, err := r.client.GetConversationsContext(ctx, &slack.GetConversationsParameters{
				Cursor:          cursor,
				ExcludeArchived: true,
				Limit:           1000,
				Types:           []string{kind},
			})
			if err != nil {
				if kind == "private_channel" {
					log.Printf("Warning: Failed to list private channels: %v", err)
					break
				}
				return "", fmt.Errorf("failed to list public channels: %w", err)
			}

			for _, channel := range channels {
				if channel.Name == name {
					return channel.ID, nil
				}
			}

			if next == "" {
				break
			}
			cursor = next
		}
	}

	return "", fmt.Errorf("channel '%s' not found", name)
}

// ClearCache clears the channel name resolution cache
func (r *ChannelResolver) ClearCache() {
	r.cache.Clear()
}

// Close stops the cache janitor
func (r *ChannelResolver) Close() {
	r.cache.Stop()
}

// isChannelID checks if a string looks like a Slack channel ID
// Channel IDs start with C (public) or G (legacy private) followed by
// uppercase alphanumerics
func isChannelID(s string) bool {
	if len(s) < 9 || len(s) > 15 {
		return false
	}
	if s[0] != 'C' && s[0] != 'G' {
		return false
	}
	for _, c := range s[1:] {
		if !((c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')) {
			return false
		}
	}
	return true
}
