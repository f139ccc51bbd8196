// file: internal/metadata/deezer.go
// version: 1.1.0
// guid: 6c1e9a4b-3f7d-4b2e-8d5a-9e2c6f0b7a48

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

// ImageLookupService resolves an artist portrait URL from a remote
// provider. A nil error with an empty URL means "no image known".
type ImageLookupService interface {
	Name() string
	GetArtistImageURL(ctx context.Context, name string) (string, error)
}

// DeezerClient looks up artist images via the public Deezer search API.
type DeezerClient struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
}

// NewDeezerClient creates a new Deezer API client.
func NewDeezerClient(baseURL string) *DeezerClient {
	return &DeezerClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		// Deezer allows 50 requests per 5 seconds; stay well under it.
		limiter: rate.NewLimiter(rate.Limit(5), 2),
	}
}

// Name returns the display name for this metadata source.
func (c *DeezerClient) Name() string {
	return "Deezer"
}

type deezerArtist struct {
	Name          string `json:"name"`
	PictureXL     string `json:"picture_xl"`
	PictureBig    string `json:"picture_big"`
	PictureMedium string `json:"picture_medium"`
}

type deezerSearchResponse struct {
	Data []deezerArtist `json:"data"`
}

// GetArtistImageURL searches Deezer for an artist and returns the
// largest available picture URL, or empty when no match exists.
func (c *DeezerClient) GetArtistImageURL(ctx context.Context, name string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	searchURL := fmt.Sprintf("%s/search/artist?q=%s&limit=1", c.baseURL, url.QueryEscape(name))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to search Deezer: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("Deezer search returned status %d", resp.StatusCode)
	}

	var result deezerSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode Deezer response: %w", err)
	}

	if len(result.Data) == 0 {
		return "", nil
	}

	artist := result.Data[0]
	switch {
	case artist.PictureXL != "":
		return artist.PictureXL, nil
	case artist.PictureBig != "":
		return artist.PictureBig, nil
	default:
		return artist.PictureMedium, nil
	}
}
