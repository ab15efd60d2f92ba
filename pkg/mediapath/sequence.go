package mediapath

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/afero"
)

// SequenceRange is the inclusive frame number range found on disk
type SequenceRange struct {
	First, Last int64
	Padding     int
}

// Len is the number of frames between First and Last
func (r SequenceRange) Len() int64 {
	return r.Last - r.First + 1
}

// FindSequence scans the directory of p for files sharing its base and extension
func FindSequence(fs afero.Fs, p Path) (SequenceRange, error) {
	dir := p.Directory
	if dir == "" {
		dir = "."
	}
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return SequenceRange{}, fmt.Errorf("scan %s: %w", dir, err)
	}
	numbers := make([]int64, 0, len(entries))
	padding := p.Padding
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasPrefix(name, p.Base) || !strings.HasSuffix(name, p.Extension) {
			continue
		}
		digits := name[len(p.Base) : len(name)-len(p.Extension)]
		if digits == "" || strings.TrimLeft(digits, "0123456789") != "" {
			continue
		}
		n, err := strconv.ParseInt(digits, 10, 64)
		if err != nil {
			continue
		}
		if len(digits) > 1 && digits[0] == '0' {
			padding = len(digits)
		}
		numbers = append(numbers, n)
	}
	if len(numbers) == 0 {
		return SequenceRange{}, fmt.Errorf("%s: %w", p.Key(), ErrNoSequence)
	}
	slices.Sort(numbers)
	return SequenceRange{First: numbers[0], Last: numbers[len(numbers)-1], Padding: padding}, nil
}

// WithNumber returns a copy of p pointing to frame n
func (p Path) WithNumber(n int64) Path {
	pad := max(p.Padding, 1)
	p.Number = fmt.Sprintf("%0*d", pad, n)
	return p
}
