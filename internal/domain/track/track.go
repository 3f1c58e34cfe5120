// Package track provides the Track domain entity.
package track

import (
	"fmt"
	"strings"
	"time"
)

// Track represents a song descriptor retrieved from the music API.
// It is the payload stored per region in the regional cache.
type Track struct {
	ID          string        `json:"id"`                    // Spotify Track ID
	Name        string        `json:"name"`                  // Track name
	Artists     []string      `json:"artists"`               // Artist names
	Album       string        `json:"album,omitempty"`       // Album name
	AlbumArtURL string        `json:"albumArtUrl,omitempty"` // Album art URL
	Duration    time.Duration `json:"duration"`              // Track duration
	URL         string        `json:"url,omitempty"`         // Spotify URL
	PreviewURL  string        `json:"previewUrl,omitempty"`  // 30 second preview, empty if unavailable
	TrackNumber int           `json:"trackNumber,omitempty"` // Position on its album
	Popularity  int           `json:"popularity"`            // Popularity score (0-100)
	Explicit    bool          `json:"explicit"`              // Explicit content flag
}

// ArtistNames returns the artist names joined for display.
func (t *Track) ArtistNames() string {
	return strings.Join(t.Artists, ", ")
}

// DurationFormatted returns the duration as m:ss.
func (t *Track) DurationFormatted() string {
	total := int(t.Duration / time.Second)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

// HasPreview reports whether a preview clip can be played.
func (t *Track) HasPreview() bool {
	return t.PreviewURL != ""
}
