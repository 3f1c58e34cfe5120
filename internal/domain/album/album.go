// Package album provides the Album domain entity.
package album

import "github.com/osa030/tunemap/internal/domain/track"

// Album represents a release returned by the new-releases listing,
// expanded with its track list.
type Album struct {
	ID          string        // Spotify Album ID
	Name        string        // Album name
	Artists     []string      // Artist names
	ReleaseDate string        // Release date as reported by the API
	AlbumType   string        // album, single or compilation
	ImageURL    string        // Cover art URL
	Tracks      []track.Track // Tracks on the album
}

// FirstTrack returns the opening track of the album, or nil if the track
// list is empty.
func (a *Album) FirstTrack() *track.Track {
	if len(a.Tracks) == 0 {
		return nil
	}
	t := a.Tracks[0]
	return &t
}

// FirstTrackOf returns the first track of the first album that has one.
func FirstTrackOf(albums []Album) *track.Track {
	for i := range albums {
		if t := albums[i].FirstTrack(); t != nil {
			return t
		}
	}
	return nil
}
