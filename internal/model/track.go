package model

// Track is a simplified catalog track as returned by search and lookup
type Track struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Artist      string  `json:"artist"`
	AllArtists  string  `json:"allArtists"`
	Album       string  `json:"album"`
	AlbumImage  *string `json:"albumImage"`
	PreviewURL  *string `json:"previewUrl"`
	ExternalURL string  `json:"externalUrl"`
	DurationMS  int     `json:"durationMs"`
	Popularity  int     `json:"popularity"`
	ReleaseDate string  `json:"releaseDate,omitempty"`
}

// Ref flattens the track into the metadata carried by a request.
func (t *Track) Ref() *TrackRef {
	ref := &TrackRef{
		SpotifyTrackID:  t.ID,
		SpotifyTrackURL: t.ExternalURL,
	}
	if t.AlbumImage != nil {
		ref.AlbumImageURL = *t.AlbumImage
	}
	if t.PreviewURL != nil {
		ref.PreviewURL = *t.PreviewURL
	}
	return ref
}

// TrackRef is opaque track metadata attached to a request at submission
type TrackRef struct {
	SpotifyTrackID  string `json:"spotifyTrackId,omitempty"`
	SpotifyTrackURL string `json:"spotifyTrackUrl,omitempty"`
	AlbumImageURL   string `json:"albumImageUrl,omitempty"`
	PreviewURL      string `json:"previewUrl,omitempty"`
}

// Empty reports whether no field is set.
func (t TrackRef) Empty() bool {
	return t == TrackRef{}
}
