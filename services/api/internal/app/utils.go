package app

import (
	"context"
	"strings"

	"polygram/internal/util"
	"polygram/pkg/linkpreview"
)

// LinkPreview fetches the preview metadata of an http(s) URL.
func (a *App) LinkPreview(ctx context.Context, rawURL string) (linkpreview.Preview, error) {
	rawURL = strings.TrimSpace(rawURL)
	if !linkpreview.ValidURL(rawURL) {
		return linkpreview.Preview{}, ErrInvalidURL
	}
	preview, err := a.previews.Fetch(ctx, rawURL)
	if err != nil {
		util.LoggerFromContext(ctx).Info("link_preview_failed", "url", rawURL, "err", err)
		return linkpreview.Preview{}, ErrLinkPreview
	}
	return preview, nil
}
