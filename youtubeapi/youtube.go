// Package youtubeapi wraps the YouTube Data API for the one question the chat
// poller cannot answer from a channel page: which video is live right now.
package youtubeapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"
)

// ErrNoLiveVideo is returned when the channel has no live broadcast.
var ErrNoLiveVideo = errors.New("youtubeapi: channel has no live video")

// Lookup answers live-video queries with an API key.
type Lookup struct {
	Service *yt.Service
}

// NewLookup builds a Lookup authenticated with apiKey. Extra options are
// appended (endpoint or HTTP client overrides in tests).
func NewLookup(ctx context.Context, apiKey string, opts ...option.ClientOption) (*Lookup, error) {
	if apiKey == "" {
		return nil, errors.New("youtubeapi: empty api key")
	}
	all := append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	svc, err := yt.NewService(ctx, all...)
	if err != nil {
		return nil, fmt.Errorf("youtube service: %w", err)
	}
	return &Lookup{Service: svc}, nil
}

// LiveVideoID returns the id of the channel's current live video.
func (l *Lookup) LiveVideoID(ctx context.Context, channelID string) (string, error) {
	if l == nil || l.Service == nil {
		return "", fmt.Errorf("nil youtube service")
	}
	res, err := l.Service.Search.List([]string{"id"}).
		ChannelId(channelID).
		EventType("live").
		Type("video").
		MaxResults(1).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("youtube search: %w", err)
	}
	for _, item := range res.Items {
		if item.Id != nil && item.Id.VideoId != "" {
			slog.Debug("live video found via data api",
				slog.String("component", "youtubeapi"),
				slog.String("channel_id", channelID),
				slog.String("video_id", item.Id.VideoId))
			return item.Id.VideoId, nil
		}
	}
	return "", ErrNoLiveVideo
}
