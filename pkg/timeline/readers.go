package timeline

import (
	"github.com/jdeisenh/tlplay/pkg/mediapath"
	"github.com/jdeisenh/tlplay/pkg/otio"
	"github.com/jdeisenh/tlplay/pkg/reader"
)

// acquire opens the reader of a clip. A clip whose reader fails to open is
// poisoned for the rest of the session.
func (t *Timeline) acquire(ref otio.ItemRef, clip *otio.Clip) (reader.Reader, func(), bool) {
	if t.poisoned[ref] {
		return nil, nil, false
	}
	p := clip.MediaReference.Path(t.dir)
	r, release, err := t.readers.Acquire(p, t.memoryOf(clip.MediaReference))
	if err != nil {
		t.poison(ref, p.String(), err)
		return nil, nil, false
	}
	ReadersOpen.Set(float64(t.readers.Len()))
	return r, release, true
}

func (t *Timeline) poison(ref otio.ItemRef, path string, err error) {
	t.poisoned[ref] = true
	t.counters.poisoned.Add(1)
	t.events.LogReaderFailed(path, err)
}

// memoryOf returns the byte range of an in-memory reference, with the data
// supplied by the host
func (t *Timeline) memoryOf(ref otio.MediaReference) *mediapath.MemoryRange {
	if ref.Kind != otio.MemoryRef {
		return ref.Memory
	}
	var m mediapath.MemoryRange
	if ref.Memory != nil {
		m = *ref.Memory
	}
	if m.Data == nil {
		m.Data = t.opts.Memory[ref.TargetURL]
	}
	return &m
}
