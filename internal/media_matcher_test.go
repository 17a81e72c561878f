package internal

import (
	"archive/zip"
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lychee-technology/tabula"
)

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func uploadedNames(files []tabula.UploadedFile) []string {
	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, f.Name)
	}
	return names
}

func TestBulkUploadSkipsDirectoriesAndJunk(t *testing.T) {
	archive := buildZip(t, map[string]string{
		"photos/":            "",
		"photos/india.png":   "png-bytes",
		"__MACOSX/._x.png":   "junk",
		"photos/.DS_Store":   "junk",
		"photos/Thumbs.db":   "junk",
		"report.pdf":         "pdf-bytes",
		"nested/._hidden.md": "junk",
	})

	media := NewMemoryMediaStore()
	matcher := NewMediaMatcher(media, ZipArchiveReader{})

	files, err := matcher.BulkUpload(context.Background(), archive)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"india.png", "report.pdf"}, uploadedNames(files))
}

func TestBulkUploadInvalidArchive(t *testing.T) {
	matcher := NewMediaMatcher(NewMemoryMediaStore(), ZipArchiveReader{})

	_, err := matcher.BulkUpload(context.Background(), []byte("definitely not a zip"))
	require.Error(t, err)
	var engineErr *tabula.EngineError
	require.ErrorAs(t, err, &engineErr)
	assert.Equal(t, tabula.ErrCodeArchiveInvalid, engineErr.Code)
}

func TestBulkUploadFailedEntriesAreSkipped(t *testing.T) {
	archive := buildZip(t, map[string]string{"a.png": "x", "b.png": "y"})
	matcher := NewMediaMatcher(failingMediaStore{}, ZipArchiveReader{})

	files, err := matcher.BulkUpload(context.Background(), archive)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestMapArchiveStructuredFolders(t *testing.T) {
	registry := newTestRegistry()
	schema, err := registry.Schema("api::country.country")
	require.NoError(t, err)

	archive := buildZip(t, map[string]string{
		"photos/india.png":  "a",
		"photos/france.png": "b",
		"other/stray.pdf":   "c",
	})

	media := NewMemoryMediaStore()
	matcher := NewMediaMatcher(media, ZipArchiveReader{})

	mappings, err := matcher.MapArchive(context.Background(), archive, schema, "name")
	require.NoError(t, err)
	require.Len(t, mappings, 1)

	assert.Equal(t, "photos", mappings[0].Field)
	assert.Equal(t, "name", mappings[0].MatchField)
	assert.ElementsMatch(t, []string{"india.png", "france.png"}, uploadedNames(mappings[0].Files))

	// structured mode never falls back to keywords for the stray entry
	assert.Len(t, media.Files, 2)
}

func TestMapArchiveKeywordFallback(t *testing.T) {
	registry := newTestRegistry()
	schema, _ := registry.Schema("api::country.country")

	archive := buildZip(t, map[string]string{
		"india-photo.png": "a",
		"notes.txt":       "b",
	})

	media := NewMemoryMediaStore()
	matcher := NewMediaMatcher(media, ZipArchiveReader{})

	mappings, err := matcher.MapArchive(context.Background(), archive, schema, "name")
	require.NoError(t, err)
	require.Len(t, mappings, 1)

	assert.Equal(t, []string{"india-photo.png"}, uploadedNames(mappings[0].Files))
	assert.Len(t, media.Files, 1, "unmatched entries are not uploaded")
}

func TestMapArchiveUploadsSharedEntriesOnce(t *testing.T) {
	registry := newTestRegistry()
	country, _ := registry.Schema("api::country.country")
	// second media field matching the same folder shares the upload
	country.Attributes["photo"] = tabula.AttributeDescriptor{Type: tabula.TypeMedia}
	country.AttributeOrder = append(country.AttributeOrder, "photo")
	defer func() {
		delete(country.Attributes, "photo")
		country.AttributeOrder = country.AttributeOrder[:len(country.AttributeOrder)-1]
	}()

	archive := buildZip(t, map[string]string{
		"photos/photo/india.png": "a",
	})

	media := NewMemoryMediaStore()
	matcher := NewMediaMatcher(media, ZipArchiveReader{})

	mappings, err := matcher.MapArchive(context.Background(), archive, country, "name")
	require.NoError(t, err)
	require.Len(t, mappings, 2)
	require.Len(t, mappings[0].Files, 1)
	require.Len(t, mappings[1].Files, 1)
	assert.Equal(t, mappings[0].Files[0].ID, mappings[1].Files[0].ID)
	assert.Len(t, media.Files, 1, "shared entries upload exactly once")
}

func TestMapArchiveFailedUploadDropsEntryFromBuckets(t *testing.T) {
	registry := newTestRegistry()
	schema, _ := registry.Schema("api::country.country")

	archive := buildZip(t, map[string]string{"photos/india.png": "a"})
	matcher := NewMediaMatcher(failingMediaStore{}, ZipArchiveReader{})

	mappings, err := matcher.MapArchive(context.Background(), archive, schema, "name")
	require.NoError(t, err)
	require.Len(t, mappings, 1)
	assert.Empty(t, mappings[0].Files)
}

func TestMIMEForFilename(t *testing.T) {
	assert.Equal(t, "image/png", MIMEForFilename("flag.PNG"))
	assert.Equal(t, "application/pdf", MIMEForFilename("report.pdf"))
	assert.Equal(t, "application/octet-stream", MIMEForFilename("binary.xyz"))
}
