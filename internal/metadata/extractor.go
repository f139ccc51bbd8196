// file: internal/metadata/extractor.go
// version: 1.5.0
// guid: 2b7d4f1a-8c3e-4a9b-b5d7-6e0f3a8c1d92

package metadata

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dhowden/tag"
	taglib "go.senan.xyz/taglib"
)

// TrackMetadata holds everything the scanner needs from one audio file.
type TrackMetadata struct {
	Title        string
	Artist       string
	AlbumArtist  string
	Album        string
	Year         int
	Genres       []string
	TrackNumber  int
	DiscNumber   int
	DurationMs   int64
	BitrateKbps  int
	SampleRateHz int
	Channels     int
	CoverArtPath string

	FileCreatedUTC  time.Time
	FileModifiedUTC time.Time
}

// Extractor parses tags and audio properties from a file path.
// A failed extraction is reported through the error return; the
// scanner skips the file and continues.
type Extractor interface {
	Extract(path string) (*TrackMetadata, error)
}

// TagExtractor reads tags and audio properties via TagLib, falling
// back to filename parsing when a file carries no usable tags.
// Embedded cover art is written to coverDir keyed by album identity.
type TagExtractor struct {
	coverDir string
}

// NewTagExtractor creates an extractor writing embedded art to coverDir.
func NewTagExtractor(coverDir string) *TagExtractor {
	return &TagExtractor{coverDir: coverDir}
}

// Extract reads metadata from an audio file.
func (e *TagExtractor) Extract(path string) (*TrackMetadata, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	meta := &TrackMetadata{
		FileModifiedUTC: info.ModTime().UTC(),
		FileCreatedUTC:  info.ModTime().UTC(),
	}

	tags, err := taglib.ReadTags(path)
	if err != nil {
		// Untagged or unreadable files still get a title from the name.
		meta.Title = titleFromFilename(path)
		if meta.Title == "" {
			return nil, fmt.Errorf("failed to read tags from %s: %w", path, err)
		}
	} else {
		applyTags(meta, tags)
	}

	if meta.Title == "" {
		meta.Title = titleFromFilename(path)
	}

	if props, err := taglib.ReadProperties(path); err == nil {
		meta.DurationMs = props.Length.Milliseconds()
		meta.BitrateKbps = int(props.Bitrate)
		meta.SampleRateHz = int(props.SampleRate)
		meta.Channels = int(props.Channels)
	}

	if e.coverDir != "" {
		if coverPath, err := e.extractEmbeddedArt(path, meta); err == nil && coverPath != "" {
			meta.CoverArtPath = coverPath
		}
	}

	return meta, nil
}

func applyTags(meta *TrackMetadata, tags map[string][]string) {
	meta.Title = firstTagValue(tags, taglib.Title, "TITLE")
	meta.Artist = firstTagValue(tags, taglib.Artist, "ARTIST")
	meta.AlbumArtist = firstTagValue(tags, taglib.AlbumArtist, "ALBUMARTIST")
	meta.Album = firstTagValue(tags, taglib.Album, "ALBUM")

	for _, raw := range tags[taglib.Genre] {
		meta.Genres = append(meta.Genres, splitGenres(raw)...)
	}

	meta.TrackNumber = parseNumericTag(firstTagValue(tags, taglib.TrackNumber, "TRACKNUMBER", "TRCK"))
	meta.DiscNumber = parseNumericTag(firstTagValue(tags, taglib.DiscNumber, "DISCNUMBER", "TPOS"))
	meta.Year = parseYearTag(firstTagValue(tags, taglib.Date, "DATE", "YEAR", "ORIGINALDATE"))
}

// extractEmbeddedArt writes the file's embedded picture (if any) to
// the cover directory, named by a slug of album artist + album so all
// tracks of one album share a single cover file.
func (e *TagExtractor) extractEmbeddedArt(path string, meta *TrackMetadata) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return "", err
	}
	pic := m.Picture()
	if pic == nil || len(pic.Data) == 0 {
		return "", nil
	}

	owner := meta.AlbumArtist
	if owner == "" {
		owner = meta.Artist
	}
	name := coverSlug(owner, meta.Album)
	if name == "" {
		name = coverSlug("", titleFromFilename(path))
	}

	ext := ".jpg"
	if strings.Contains(strings.ToLower(pic.MIMEType), "png") {
		ext = ".png"
	}
	destPath := filepath.Join(e.coverDir, name+ext)

	// All tracks of an album carry the same front cover; first writer wins.
	if _, err := os.Stat(destPath); err == nil {
		return destPath, nil
	}

	if err := os.MkdirAll(e.coverDir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(destPath, pic.Data, 0o644); err != nil {
		return "", err
	}
	return destPath, nil
}

func firstTagValue(tags map[string][]string, keys ...string) string {
	for _, key := range keys {
		for _, value := range tags[key] {
			if trimmed := strings.TrimSpace(value); trimmed != "" {
				return trimmed
			}
		}
	}
	return ""
}

// splitGenres breaks multi-genre tag values like "Rock; Indie" apart.
func splitGenres(raw string) []string {
	var genres []string
	for _, part := range strings.FieldsFunc(raw, func(r rune) bool {
		return r == ';' || r == '/' || r == ','
	}) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			genres = append(genres, trimmed)
		}
	}
	return genres
}

// parseNumericTag handles plain numbers and "track/total" forms.
func parseNumericTag(value string) int {
	if value == "" {
		return 0
	}
	if idx := strings.IndexByte(value, '/'); idx >= 0 {
		value = value[:idx]
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// parseYearTag accepts "2003", "2003-05-21", and similar date forms.
func parseYearTag(value string) int {
	if len(value) < 4 {
		return 0
	}
	year, err := strconv.Atoi(value[:4])
	if err != nil || year < 1000 || year > 9999 {
		return 0
	}
	return year
}

func titleFromFilename(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))

	// Strip a leading track number ("01 - Title", "01. Title", "01 Title")
	parts := strings.SplitN(base, " ", 2)
	if len(parts) == 2 {
		lead := strings.TrimRight(parts[0], ".-_")
		if _, err := strconv.Atoi(lead); err == nil {
			base = strings.TrimLeft(parts[1], "-. ")
		}
	}
	return strings.TrimSpace(base)
}

// coverSlug builds a stable filesystem-safe name from artist + album.
func coverSlug(artist, album string) string {
	raw := strings.TrimSpace(artist + " " + album)
	if raw == "" {
		return ""
	}
	var b strings.Builder
	for _, r := range strings.ToLower(raw) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteByte('-')
		}
	}
	return strings.Trim(b.String(), "-")
}
