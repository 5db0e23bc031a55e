// Package archive packages rendered invoices into a single download.
package archive

import (
	"archive/zip"
	"bytes"
	"fmt"
	"path"
	"strings"
	"time"
)

// File is one archive entry.
type File struct {
	Name string
	Data []byte
}

// Writer packs files into one archive blob.
type Writer interface {
	Write(files []File) ([]byte, error)
}

// ZipWriter writes deflate-compressed zip archives. Entry names are reduced
// to their base name and made unique.
type ZipWriter struct {
	// Modified is stamped on every entry; zero means now.
	Modified time.Time
}

func NewZipWriter() *ZipWriter {
	return &ZipWriter{}
}

func (w *ZipWriter) Write(files []File) ([]byte, error) {
	modified := w.Modified
	if modified.IsZero() {
		modified = time.Now().UTC()
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	seen := make(map[string]int, len(files))

	for _, f := range files {
		name := uniqueName(entryName(f.Name), seen)
		fw, err := zw.CreateHeader(&zip.FileHeader{
			Name:     name,
			Method:   zip.Deflate,
			Modified: modified,
		})
		if err != nil {
			return nil, fmt.Errorf("zip entry %s: %w", name, err)
		}
		if _, err := fw.Write(f.Data); err != nil {
			return nil, fmt.Errorf("zip entry %s: %w", name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BatchArchiveName is the download name of a batch archive.
func BatchArchiveName(batchID string) string {
	return fmt.Sprintf("invoices_batch_%s.zip", batchID)
}

func entryName(name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "file"
	}
	return name
}

func uniqueName(name string, seen map[string]int) string {
	n := seen[name]
	seen[name] = n + 1
	if n == 0 {
		return name
	}
	ext := path.Ext(name)
	return fmt.Sprintf("%s-%d%s", strings.TrimSuffix(name, ext), n+1, ext)
}
