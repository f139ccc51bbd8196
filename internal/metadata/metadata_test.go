// file: internal/metadata/metadata_test.go
// version: 1.1.0
// guid: 4a8d2e6c-1b9f-4c3a-9e7b-5d0a8f2c6e13

package metadata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNumericTag(t *testing.T) {
	tests := []struct {
		input    string
		expected int
	}{
		{"", 0},
		{"7", 7},
		{"03", 3},
		{"5/12", 5},
		{" 9 ", 9},
		{"abc", 0},
		{"-1", 0},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.expected, parseNumericTag(tc.input), "input %q", tc.input)
	}
}

func TestParseYearTag(t *testing.T) {
	assert.Equal(t, 2003, parseYearTag("2003"))
	assert.Equal(t, 1999, parseYearTag("1999-12-31"))
	assert.Equal(t, 0, parseYearTag("99"))
	assert.Equal(t, 0, parseYearTag(""))
	assert.Equal(t, 0, parseYearTag("year"))
}

func TestSplitGenres(t *testing.T) {
	assert.Equal(t, []string{"Rock", "Indie"}, splitGenres("Rock; Indie"))
	assert.Equal(t, []string{"Jazz"}, splitGenres("Jazz"))
	assert.Equal(t, []string{"Pop", "Dance"}, splitGenres("Pop/Dance"))
	assert.Nil(t, splitGenres("  "))
}

func TestTitleFromFilename(t *testing.T) {
	assert.Equal(t, "Blue Train", titleFromFilename("/music/01 - Blue Train.flac"))
	assert.Equal(t, "Blue Train", titleFromFilename("/music/01. Blue Train.mp3"))
	assert.Equal(t, "Interlude", titleFromFilename("/music/Interlude.ogg"))
}

func TestCoverSlug(t *testing.T) {
	assert.Equal(t, "miles-davis-kind-of-blue", coverSlug("Miles Davis", "Kind of Blue"))
	assert.Equal(t, "", coverSlug("", ""))
	assert.Equal(t, "ac-dc-back-in-black", coverSlug("AC DC", "Back in Black"))
}

func TestAudioDBGetArtistInfo(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search.php", r.URL.Path)
		assert.Equal(t, "Radiohead", r.URL.Query().Get("s"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"artists":[{"strArtist":"Radiohead","strBiographyEN":"An English rock band.","strArtistThumb":"https://img.example.com/thumb.jpg"}]}`))
	}))
	defer server.Close()

	client := NewAudioDBClient(server.URL)
	info, err := client.GetArtistInfo(context.Background(), "Radiohead")
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, "An English rock band.", info.Biography)
	assert.Equal(t, "https://img.example.com/thumb.jpg", info.ImageURL)
}

func TestAudioDBGetArtistInfoNoMatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"artists":null}`))
	}))
	defer server.Close()

	client := NewAudioDBClient(server.URL)
	info, err := client.GetArtistInfo(context.Background(), "Nobody")
	require.NoError(t, err)
	assert.Nil(t, info)
}

func TestAudioDBGetArtistInfoServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewAudioDBClient(server.URL)
	_, err := client.GetArtistInfo(context.Background(), "Radiohead")
	require.Error(t, err)
}

func TestDeezerGetArtistImageURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search/artist", r.URL.Path)
		assert.Equal(t, "Portishead", r.URL.Query().Get("q"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[{"name":"Portishead","picture_xl":"https://img.example.com/xl.jpg","picture_big":"https://img.example.com/big.jpg"}]}`))
	}))
	defer server.Close()

	client := NewDeezerClient(server.URL)
	url, err := client.GetArtistImageURL(context.Background(), "Portishead")
	require.NoError(t, err)
	assert.Equal(t, "https://img.example.com/xl.jpg", url)
}

func TestDeezerGetArtistImageURLNoMatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[]}`))
	}))
	defer server.Close()

	client := NewDeezerClient(server.URL)
	url, err := client.GetArtistImageURL(context.Background(), "Nobody")
	require.NoError(t, err)
	assert.Empty(t, url)
}
