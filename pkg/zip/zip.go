// Package zip bundles generated media into a single downloadable archive.
package zip

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path"
	"time"
)

// Entry is one file in the archive. Names are flattened to their base name.
type Entry struct {
	Name     string
	Modified time.Time
	Data     []byte
}

// Write streams entries into w. Duplicate names get a numeric suffix so that
// no entry shadows another.
func Write(w io.Writer, entries []Entry) error {
	zw := zip.NewWriter(w)
	seen := make(map[string]int, len(entries))
	for _, e := range entries {
		name := uniqueName(path.Base(e.Name), seen)
		hdr := &zip.FileHeader{Name: name, Method: zip.Deflate, Modified: e.Modified}
		fw, err := zw.CreateHeader(hdr)
		if err != nil {
			return fmt.Errorf("zip: create %s: %w", name, err)
		}
		if _, err := fw.Write(e.Data); err != nil {
			return fmt.Errorf("zip: write %s: %w", name, err)
		}
	}
	return zw.Close()
}

// Archive is Write into memory.
func Archive(entries []Entry) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, entries); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func uniqueName(name string, seen map[string]int) string {
	if name == "." || name == "/" || name == "" {
		name = "file"
	}
	n := seen[name]
	seen[name] = n + 1
	if n == 0 {
		return name
	}
	ext := path.Ext(name)
	return fmt.Sprintf("%s-%d%s", name[:len(name)-len(ext)], n, ext)
}
