package publish

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/api/youtube/v3"
)

// Scanner reads descriptions from the authenticated channel's uploads.
type Scanner struct {
	svc      *youtube.Service
	pageSize int64
}

// NewScanner returns a Scanner backed by svc.
func NewScanner(svc *youtube.Service) *Scanner {
	return &Scanner{svc: svc, pageSize: 50}
}

// ScanDescriptions walks the uploads playlist page by page.
func (s *Scanner) ScanDescriptions(ctx context.Context) ([]string, error) {
	channels, err := s.svc.Channels.List([]string{"contentDetails"}).Mine(true).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("list channel: %w", err)
	}
	if len(channels.Items) == 0 || channels.Items[0].ContentDetails == nil || channels.Items[0].ContentDetails.RelatedPlaylists == nil {
		return nil, errors.New("authenticated account has no channel")
	}
	uploads := channels.Items[0].ContentDetails.RelatedPlaylists.Uploads
	if uploads == "" {
		return nil, errors.New("channel has no uploads playlist")
	}

	var descriptions []string
	pageToken := ""
	for {
		call := s.svc.PlaylistItems.List([]string{"snippet"}).
			PlaylistId(uploads).
			MaxResults(s.pageSize).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		page, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("list uploads: %w", err)
		}
		for _, item := range page.Items {
			if item.Snippet != nil {
				descriptions = append(descriptions, item.Snippet.Description)
			}
		}
		if page.NextPageToken == "" {
			return descriptions, nil
		}
		pageToken = page.NextPageToken
	}
}
