package internal

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/lychee-technology/tabula"
)

// ZipArchiveReader reads zip archives into the generic entry list.
type ZipArchiveReader struct{}

// Entries implements tabula.ArchiveReader.
func (ZipArchiveReader) Entries(data []byte) ([]tabula.ArchiveEntry, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, tabula.NewEngineError(tabula.ErrCodeArchiveInvalid, "cannot read archive").WithCause(err)
	}
	entries := make([]tabula.ArchiveEntry, 0, len(zr.File))
	for _, f := range zr.File {
		f := f
		entries = append(entries, tabula.ArchiveEntry{
			Path: f.Name,
			Dir:  f.FileInfo().IsDir(),
			Size: int64(f.UncompressedSize64),
			Open: func() (io.ReadCloser, error) { return f.Open() },
		})
	}
	return entries, nil
}

// mimeByExtension maps lowercase filename extensions to MIME types; anything
// else uploads as application/octet-stream.
var mimeByExtension = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".svg":  "image/svg+xml",
	".pdf":  "application/pdf",
	".csv":  "text/csv",
	".txt":  "text/plain",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xls":  "application/vnd.ms-excel",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".zip":  "application/zip",
	".mp3":  "audio/mpeg",
	".mp4":  "video/mp4",
}

// MIMEForFilename infers the MIME type from the filename extension.
func MIMEForFilename(name string) string {
	if mime, ok := mimeByExtension[strings.ToLower(path.Ext(name))]; ok {
		return mime
	}
	return "application/octet-stream"
}

// mediaKeywordRules associates media field-name substrings with filename
// keywords, used to distribute an unstructured archive. A field whose name
// matches no rule receives nothing in fallback mode.
var mediaKeywordRules = []struct {
	fieldSub string
	keywords []string
}{
	{"image", []string{"img", "image", "photo", "picture", "pic"}},
	{"photo", []string{"img", "image", "photo", "picture", "pic"}},
	{"logo", []string{"logo", "brand", "mark"}},
	{"icon", []string{"icon", "ico"}},
	{"avatar", []string{"avatar", "profile", "portrait"}},
	{"report", []string{"report", "rpt", "analysis", "summary", "result"}},
	{"document", []string{"doc", "document", "pdf", "scan"}},
	{"attachment", []string{"attach", "file", "upload"}},
}

func keywordsFor(field string) []string {
	lower := strings.ToLower(field)
	for _, rule := range mediaKeywordRules {
		if strings.Contains(lower, rule.fieldSub) {
			return rule.keywords
		}
	}
	return nil
}

// MediaMatcher extracts archives, buckets their entries onto a schema's media
// fields and uploads each unique asset exactly once.
type MediaMatcher struct {
	media  tabula.MediaStore
	reader tabula.ArchiveReader
}

// NewMediaMatcher creates a matcher over the given media store and archive
// reader.
func NewMediaMatcher(media tabula.MediaStore, reader tabula.ArchiveReader) *MediaMatcher {
	return &MediaMatcher{media: media, reader: reader}
}

// BulkUpload uploads every non-directory entry of the archive as a new asset.
// Entries that fail to upload are skipped with a warning; the operation never
// fails as a whole once the archive itself is readable.
func (m *MediaMatcher) BulkUpload(ctx context.Context, archive []byte) ([]tabula.UploadedFile, error) {
	entries, err := m.reader.Entries(archive)
	if err != nil {
		return nil, err
	}
	var files []tabula.UploadedFile
	for _, entry := range entries {
		if entry.Dir || isJunkPath(entry.Path) {
			continue
		}
		file, err := m.uploadEntry(ctx, entry)
		if err != nil {
			zap.S().Warnw("media: upload failed, entry skipped", "path", entry.Path, "err", err)
			continue
		}
		files = append(files, file)
	}
	return files, nil
}

// MapArchive buckets archive entries onto the schema's media fields. When any
// path segment exactly names a media field the archive is treated as
// structured and only folder matches count; otherwise every entry is offered
// to every field through the keyword table. Entries referenced by multiple
// buckets are uploaded once and shared.
func (m *MediaMatcher) MapArchive(ctx context.Context, archive []byte, schema *tabula.Schema, matchField string) ([]tabula.MediaFieldMapping, error) {
	entries, err := m.reader.Entries(archive)
	if err != nil {
		return nil, err
	}

	fields := schema.MediaFields()
	candidates := make([]tabula.ArchiveEntry, 0, len(entries))
	for _, entry := range entries {
		if !entry.Dir && !isJunkPath(entry.Path) {
			candidates = append(candidates, entry)
		}
	}

	buckets := make(map[string][]string, len(fields)) // field -> entry keys
	structured := false
	for _, entry := range candidates {
		for _, segment := range strings.Split(entry.Path, "/") {
			for _, field := range fields {
				if segment == field {
					buckets[field] = append(buckets[field], entryKey(entry))
					structured = true
				}
			}
		}
	}

	if !structured {
		for _, field := range fields {
			keywords := keywordsFor(field)
			if len(keywords) == 0 {
				continue
			}
			for _, entry := range candidates {
				name := strings.ToLower(path.Base(entry.Path))
				for _, kw := range keywords {
					if strings.Contains(name, kw) {
						buckets[field] = append(buckets[field], entryKey(entry))
						break
					}
				}
			}
		}
	}

	// Upload each unique (filename, path) entry once; buckets share results.
	uploaded := make(map[string]tabula.UploadedFile)
	byKey := make(map[string]tabula.ArchiveEntry, len(candidates))
	for _, entry := range candidates {
		byKey[entryKey(entry)] = entry
	}
	for _, keys := range buckets {
		for _, key := range keys {
			if _, done := uploaded[key]; done {
				continue
			}
			file, err := m.uploadEntry(ctx, byKey[key])
			if err != nil {
				zap.S().Warnw("media: upload failed, entry skipped", "path", key, "err", err)
				continue
			}
			uploaded[key] = file
		}
	}

	mappings := make([]tabula.MediaFieldMapping, 0, len(fields))
	for _, field := range fields {
		mapping := tabula.MediaFieldMapping{Field: field, MatchField: matchField}
		seen := make(map[string]bool)
		for _, key := range buckets[field] {
			if seen[key] {
				continue
			}
			seen[key] = true
			if file, ok := uploaded[key]; ok {
				mapping.Files = append(mapping.Files, file)
			}
		}
		mappings = append(mappings, mapping)
	}
	return mappings, nil
}

func (m *MediaMatcher) uploadEntry(ctx context.Context, entry tabula.ArchiveEntry) (tabula.UploadedFile, error) {
	rc, err := entry.Open()
	if err != nil {
		return tabula.UploadedFile{}, err
	}
	defer rc.Close()

	name := path.Base(entry.Path)
	return m.media.Upload(ctx, tabula.FileInfo{
		Name: name,
		MIME: MIMEForFilename(name),
		Size: entry.Size,
	}, rc)
}

// isJunkPath filters platform metadata entries out of archives.
func isJunkPath(p string) bool {
	for _, segment := range strings.Split(p, "/") {
		switch {
		case segment == "__MACOSX", segment == ".DS_Store", segment == "Thumbs.db":
			return true
		case strings.HasPrefix(segment, "._"):
			return true
		}
	}
	return false
}

func entryKey(entry tabula.ArchiveEntry) string {
	return path.Base(entry.Path) + "|" + entry.Path
}
