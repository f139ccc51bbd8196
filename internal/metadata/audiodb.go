// file: internal/metadata/audiodb.go
// version: 1.2.0
// guid: 8e3a5c7f-2d9b-4e1a-a6c8-4f7b0d3e9a25

package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// ArtistInfo is the merged result of a remote artist lookup.
type ArtistInfo struct {
	Biography string
	ImageURL  string
}

// BiographyService fetches artist biography/image data from a remote
// metadata provider.
type BiographyService interface {
	Name() string
	GetArtistInfo(ctx context.Context, name string) (*ArtistInfo, error)
}

// AudioDBClient fetches artist metadata from TheAudioDB community API.
// The free tier allows roughly two requests per second, so calls are
// throttled through a shared limiter.
type AudioDBClient struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
}

// NewAudioDBClient creates a new TheAudioDB API client.
func NewAudioDBClient(baseURL string) *AudioDBClient {
	return &AudioDBClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		limiter:    rate.NewLimiter(rate.Limit(2), 1),
	}
}

// Name returns the display name for this metadata source.
func (c *AudioDBClient) Name() string {
	return "TheAudioDB"
}

// TheAudioDB API response types
type audioDBArtist struct {
	Name         string `json:"strArtist"`
	BiographyEN  string `json:"strBiographyEN"`
	ArtistThumb  string `json:"strArtistThumb"`
	ArtistLogo   string `json:"strArtistLogo"`
	ArtistwideBG string `json:"strArtistFanart"`
}

type audioDBSearchResponse struct {
	Artists []audioDBArtist `json:"artists"`
}

// GetArtistInfo searches TheAudioDB for an artist by name and returns
// the English biography plus the best available image URL.
func (c *AudioDBClient) GetArtistInfo(ctx context.Context, name string) (*ArtistInfo, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	searchURL := fmt.Sprintf("%s/search.php?s=%s", c.baseURL, url.QueryEscape(name))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to search TheAudioDB: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("TheAudioDB search returned status %d", resp.StatusCode)
	}

	var result audioDBSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode TheAudioDB response: %w", err)
	}

	if len(result.Artists) == 0 {
		return nil, nil
	}

	artist := result.Artists[0]
	info := &ArtistInfo{
		Biography: strings.TrimSpace(artist.BiographyEN),
	}
	// Prefer the thumb; fall back to fanart if no portrait exists.
	if artist.ArtistThumb != "" {
		info.ImageURL = artist.ArtistThumb
	} else if artist.ArtistwideBG != "" {
		info.ImageURL = artist.ArtistwideBG
	}
	return info, nil
}
