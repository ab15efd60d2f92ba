package mediapath

import (
	"bytes"
	"fmt"
	"io"

	"github.com/spf13/afero"
)

// MemoryRange is either a byte slice or a window into a file, starting at
// Offset with Size bytes. Size <= 0 means up to the end.
type MemoryRange struct {
	Data   []byte
	Offset int64
	Size   int64
}

// InMemory reports whether the range refers to Data rather than a file
func (m MemoryRange) InMemory() bool {
	return m.Data != nil
}

// Source is an open media location
type Source interface {
	io.ReadSeeker
	io.ReaderAt
	io.Closer
}

type memSource struct {
	*bytes.Reader
}

func (memSource) Close() error { return nil }

type sectionSource struct {
	*io.SectionReader
	file afero.File
}

func (s sectionSource) Close() error { return s.file.Close() }

// Open returns a reader for the path, restricted to mem when given
func Open(fs afero.Fs, p string, mem *MemoryRange) (Source, error) {
	if mem != nil && mem.InMemory() {
		data := mem.Data
		if mem.Offset > int64(len(data)) {
			return nil, fmt.Errorf("offset %d beyond %d bytes", mem.Offset, len(data))
		}
		data = data[mem.Offset:]
		if mem.Size > 0 && mem.Size < int64(len(data)) {
			data = data[:mem.Size]
		}
		return memSource{bytes.NewReader(data)}, nil
	}
	f, err := fs.Open(p)
	if err != nil {
		return nil, err
	}
	if mem == nil || (mem.Offset == 0 && mem.Size <= 0) {
		return f, nil
	}
	size := mem.Size
	if size <= 0 {
		st, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, err
		}
		size = st.Size() - mem.Offset
	}
	return sectionSource{io.NewSectionReader(f, mem.Offset, size), f}, nil
}
