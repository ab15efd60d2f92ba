package mediapath

import (
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/samber/mo"
)

var ErrNoSequence = errors.New("no sequence")

// Path identifies a media location. For image sequences Number holds the
// frame number of the parsed file name and Padding its zero padded width.
type Path struct {
	Directory string
	Base      string
	Number    string
	Padding   int
	Extension string
}

// Parse splits a file path into directory, base, number and extension.
// "render/test.0001.exr" yields "render/", "test.", "0001", 4 and ".exr".
// A run of '#' or a printf verb like "%04d" is accepted in place of the number.
func Parse(p string) Path {
	var out Path
	slash := strings.LastIndexAny(p, `/\`)
	out.Directory = p[:slash+1]
	name := p[slash+1:]

	if dot := strings.LastIndexByte(name, '.'); dot > 0 {
		out.Extension = name[dot:]
		name = name[:dot]
	}
	switch {
	case strings.HasSuffix(name, "#"):
		stem := strings.TrimRight(name, "#")
		out.Padding = len(name) - len(stem)
		out.Base = stem
		return out
	case strings.HasSuffix(name, "d") && strings.LastIndexByte(name, '%') >= 0:
		pct := strings.LastIndexByte(name, '%')
		if pad, ok := parseVerb(name[pct+1 : len(name)-1]); ok {
			out.Padding = pad
			out.Base = name[:pct]
			return out
		}
	}
	i := len(name)
	for i > 0 && name[i-1] >= '0' && name[i-1] <= '9' {
		i--
	}
	// A name made only of digits has no base, keep it as plain file
	if i == 0 {
		out.Base = name
		return out
	}
	out.Base = name[:i]
	out.Number = name[i:]
	if len(out.Number) > 1 && out.Number[0] == '0' {
		out.Padding = len(out.Number)
	}
	return out
}

// parseVerb accepts the width part of %d, %4d, %04d
func parseVerb(s string) (int, bool) {
	if s == "" {
		return 1, true
	}
	n, err := strconv.Atoi(strings.TrimPrefix(s, "0"))
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// IsSequence reports whether the path carries a frame number or pattern
func (p Path) IsSequence() bool {
	return p.Number != "" || p.Padding > 0
}

// Frame returns the parsed frame number, if any
func (p Path) Frame() mo.Option[int64] {
	if p.Number == "" {
		return mo.None[int64]()
	}
	n, err := strconv.ParseInt(p.Number, 10, 64)
	if err != nil {
		return mo.None[int64]()
	}
	return mo.Some(n)
}

// Format returns a fmt template for the sequence, with the number as only argument
func (p Path) Format() string {
	verb := "%d"
	if p.Padding > 0 {
		verb = fmt.Sprintf("%%0%dd", p.Padding)
	}
	return escape(p.Directory+p.Base) + verb + escape(p.Extension)
}

// Get renders the file name of frame number
func (p Path) Get(number int64) string {
	if !p.IsSequence() {
		return p.String()
	}
	return fmt.Sprintf(p.Format(), number)
}

// String renders the path as parsed
func (p Path) String() string {
	return p.Directory + p.Base + p.Number + p.Extension
}

// Key identifies the media independent of the frame number
func (p Path) Key() string {
	if !p.IsSequence() {
		return p.String()
	}
	return p.Directory + p.Base + strings.Repeat("#", max(p.Padding, 1)) + p.Extension
}

// FileName is the last path element as parsed
func (p Path) FileName() string {
	return p.Base + p.Number + p.Extension
}

// Ext returns the lower case extension without the dot
func (p Path) Ext() string {
	return strings.ToLower(strings.TrimPrefix(p.Extension, "."))
}

// Join resolves a relative path against dir
func Join(dir, p string) string {
	if p == "" || path.IsAbs(p) || dir == "" {
		return p
	}
	return path.Join(dir, p)
}

func escape(s string) string {
	return strings.ReplaceAll(s, "%", "%%")
}
