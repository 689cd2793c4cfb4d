// Package archive packs named buffers into a single ZIP file.
package archive

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/klauspost/compress/zip"
)

// ErrDuplicateName is returned when two entries share a name.
var ErrDuplicateName = errors.New("archive: duplicate entry name")

// Entry is one file of an archive.
type Entry struct {
	Name string
	Data []byte
}

// Builder collects entries in insertion order. The zero value is ready to use.
type Builder struct {
	entries []Entry
	names   map[string]struct{}
	// Modified stamps every entry; zero means the time Bytes is called.
	Modified time.Time
}

// Add appends an entry.
func (b *Builder) Add(name string, data []byte) error {
	if name == "" {
		return errors.New("archive: empty entry name")
	}
	if b.names == nil {
		b.names = make(map[string]struct{})
	}
	if _, ok := b.names[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateName, name)
	}
	b.names[name] = struct{}{}
	b.entries = append(b.entries, Entry{Name: name, Data: data})
	return nil
}

// Len returns the number of entries added so far.
func (b *Builder) Len() int { return len(b.entries) }

// Bytes writes the archive. Already-compressed payloads (PDF, JPEG) are
// still deflated; the ZIP is produced in one pass.
func (b *Builder) Bytes() ([]byte, error) {
	mod := b.Modified
	if mod.IsZero() {
		mod = time.Now()
	}
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range b.entries {
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     e.Name,
			Method:   zip.Deflate,
			Modified: mod,
		})
		if err != nil {
			return nil, fmt.Errorf("zip header %s: %w", e.Name, err)
		}
		if _, err := w.Write(e.Data); err != nil {
			return nil, fmt.Errorf("zip write %s: %w", e.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("zip close: %w", err)
	}
	return buf.Bytes(), nil
}
