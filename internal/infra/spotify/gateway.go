package spotify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/zmb3/spotify/v2"

	"github.com/osa030/tunemap/internal/domain/album"
	"github.com/osa030/tunemap/internal/domain/region"
	"github.com/osa030/tunemap/internal/domain/remote"
	"github.com/osa030/tunemap/internal/domain/track"
)

const (
	searchLimit        = 10
	playlistItemsLimit = 10
	newReleasesLimit   = 20
	albumsToExpand     = 10
)

// officialKeywords mark a Spotify-owned chart playlist.
var officialKeywords = []string{"top 50", "top 100", "viral 50", "top songs"}

// chartKeywords mark any chart-like playlist.
var chartKeywords = []string{"top 50", "top 100", "viral 50"}

// chartQueries returns the playlist searches tried for a country, in order.
func chartQueries(c region.Country) []string {
	return []string{
		"Top 50 " + c.Name,
		"Top Songs " + c.Name,
		"Top 100 " + c.Name,
		"Viral 50 " + c.Name,
		"Top 50 " + c.Code,
	}
}

// SearchTopChart looks for a chart playlist for the country and returns its
// first track. A query that fails is skipped, except for authorization and
// cancellation failures which end the search. It returns nil without error
// when no query produced a usable track.
func (c *Client) SearchTopChart(ctx context.Context, accessToken string, country region.Country) (*track.Track, error) {
	api := c.api(accessToken)

	var lastErr error
	for _, query := range chartQueries(country) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		t, err := c.searchChartQuery(ctx, api, query, country.Code)
		if err != nil {
			if errors.Is(err, remote.ErrUnauthorized) || ctx.Err() != nil {
				return nil, err
			}
			c.log.Debug().Err(err).Str("country", country.Code).Str("query", query).Msg("chart query failed, trying next")
			lastErr = err
			continue
		}
		if t != nil {
			c.log.Debug().Str("country", country.Code).Str("query", query).Str("track", t.Name).Msg("chart track found")
			return t, nil
		}
	}

	if lastErr != nil && remote.IsTransient(lastErr) {
		return nil, lastErr
	}
	return nil, nil
}

func (c *Client) searchChartQuery(ctx context.Context, api *spotify.Client, query, market string) (*track.Track, error) {
	var result *spotify.SearchResult
	err := c.call(ctx, "search playlists", func() error {
		r, err := api.Search(ctx, query, spotify.SearchTypePlaylist,
			spotify.Market(market),
			spotify.Limit(searchLimit),
		)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result == nil || result.Playlists == nil {
		return nil, nil
	}

	playlist := pickChartPlaylist(result.Playlists.Playlists)
	if playlist == nil {
		return nil, nil
	}

	var page *spotify.PlaylistItemPage
	err = c.call(ctx, "playlist items", func() error {
		p, err := api.GetPlaylistItems(ctx, playlist.ID,
			spotify.Market(market),
			spotify.Limit(playlistItemsLimit),
		)
		if err != nil {
			return err
		}
		page = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, item := range page.Items {
		// Only process tracks (exclude episodes and local files)
		if item.Track.Track != nil && item.Track.Track.ID != "" {
			return convertFullTrack(item.Track.Track), nil
		}
	}
	return nil, nil
}

// pickChartPlaylist prefers a Spotify-owned playlist named like an official
// chart, then any playlist named like a chart.
func pickChartPlaylist(playlists []spotify.SimplePlaylist) *spotify.SimplePlaylist {
	for i := range playlists {
		p := &playlists[i]
		if p.ID == "" {
			continue
		}
		if isSpotifyOwned(p.Owner) && containsAny(p.Name, officialKeywords) {
			return p
		}
	}
	for i := range playlists {
		p := &playlists[i]
		if p.ID == "" {
			continue
		}
		if containsAny(p.Name, chartKeywords) {
			return p
		}
	}
	return nil
}

func isSpotifyOwned(owner spotify.User) bool {
	return strings.Contains(strings.ToLower(owner.DisplayName), "spotify") || owner.ID == "spotify"
}

func containsAny(name string, keywords []string) bool {
	lower := strings.ToLower(name)
	for _, k := range keywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// FetchNewReleases returns the country's new releases, the first few of
// them expanded with their track lists. Albums that cannot be expanded are
// skipped.
func (c *Client) FetchNewReleases(ctx context.Context, accessToken string, country region.Country) ([]album.Album, error) {
	api := c.api(accessToken)

	var page *spotify.SimpleAlbumPage
	err := c.call(ctx, "new releases", func() error {
		p, err := api.NewReleases(ctx,
			spotify.Country(country.Code),
			spotify.Limit(newReleasesLimit),
		)
		if err != nil {
			return err
		}
		page = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	if page == nil {
		return nil, nil
	}

	simple := page.Albums
	if len(simple) > albumsToExpand {
		simple = simple[:albumsToExpand]
	}

	albums := make([]album.Album, 0, len(simple))
	for _, sa := range simple {
		if sa.ID == "" {
			continue
		}
		var full *spotify.FullAlbum
		err := c.call(ctx, "album", func() error {
			a, err := api.GetAlbum(ctx, sa.ID, spotify.Market(country.Code))
			if err != nil {
				return err
			}
			full = a
			return nil
		})
		if err != nil {
			if errors.Is(err, remote.ErrUnauthorized) || ctx.Err() != nil {
				return nil, err
			}
			c.log.Debug().Err(err).Str("country", country.Code).Str("album", string(sa.ID)).Msg("skipping album that could not be expanded")
			continue
		}
		albums = append(albums, convertAlbum(full))
	}
	return albums, nil
}

// SearchTrack resolves an artist and title to a catalog track available in
// market. It returns nil without error when nothing matches.
func (c *Client) SearchTrack(ctx context.Context, accessToken, artist, title, market string) (*track.Track, error) {
	if title == "" {
		return nil, errors.New("track title is required")
	}
	query := fmt.Sprintf("track:%s", title)
	if artist != "" {
		query += fmt.Sprintf(" artist:%s", artist)
	}

	var result *spotify.SearchResult
	err := c.call(ctx, "search tracks", func() error {
		r, err := c.api(accessToken).Search(ctx, query, spotify.SearchTypeTrack,
			spotify.Market(market),
			spotify.Limit(1),
		)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result == nil || result.Tracks == nil || len(result.Tracks.Tracks) == 0 {
		return nil, nil
	}
	return convertFullTrack(&result.Tracks.Tracks[0]), nil
}

// convertFullTrack converts a Spotify FullTrack to domain Track.
func convertFullTrack(t *spotify.FullTrack) *track.Track {
	var albumArt string
	if len(t.Album.Images) > 0 {
		albumArt = t.Album.Images[0].URL
	}

	out := convertSimpleTrack(&t.SimpleTrack, t.Album.Name, albumArt)
	out.Popularity = int(t.Popularity)
	return &out
}

func convertSimpleTrack(t *spotify.SimpleTrack, albumName, albumArt string) track.Track {
	artists := make([]string, len(t.Artists))
	for i, a := range t.Artists {
		artists[i] = a.Name
	}

	return track.Track{
		ID:          string(t.ID),
		Name:        t.Name,
		Artists:     artists,
		Album:       albumName,
		AlbumArtURL: albumArt,
		Duration:    time.Duration(t.Duration) * time.Millisecond,
		URL:         trackURL(t),
		PreviewURL:  t.PreviewURL,
		TrackNumber: int(t.TrackNumber),
		Explicit:    t.Explicit,
	}
}

// convertAlbum converts a Spotify FullAlbum to domain Album.
func convertAlbum(a *spotify.FullAlbum) album.Album {
	artists := make([]string, len(a.Artists))
	for i, ar := range a.Artists {
		artists[i] = ar.Name
	}
	var image string
	if len(a.Images) > 0 {
		image = a.Images[0].URL
	}

	tracks := make([]track.Track, 0, len(a.Tracks.Tracks))
	for i := range a.Tracks.Tracks {
		st := &a.Tracks.Tracks[i]
		if st.ID == "" {
			continue
		}
		tracks = append(tracks, convertSimpleTrack(st, a.Name, image))
	}

	return album.Album{
		ID:          string(a.ID),
		Name:        a.Name,
		Artists:     artists,
		ReleaseDate: a.ReleaseDate,
		AlbumType:   a.AlbumType,
		ImageURL:    image,
		Tracks:      tracks,
	}
}

// trackURL returns the Spotify URL for a track.
func trackURL(t *spotify.SimpleTrack) string {
	if u, ok := t.ExternalURLs["spotify"]; ok && u != "" {
		return u
	}
	return fmt.Sprintf("https://open.spotify.com/track/%s", t.ID)
}
