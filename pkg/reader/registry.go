package reader

import (
	"fmt"
	"slices"
	"strings"

	"github.com/jdeisenh/tlplay/pkg/mediapath"
	"github.com/jdeisenh/tlplay/pkg/otime"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/spf13/afero"
)

// FileType is what kind of media a plugin handles
type FileType int

const (
	Unknown FileType = iota
	Sequence
	Movie
	AudioFile
)

func (f FileType) String() string {
	switch f {
	case Sequence:
		return "sequence"
	case Movie:
		return "movie"
	case AudioFile:
		return "audio"
	}
	return "unknown"
}

// OpenOptions is what a plugin gets to construct a reader
type OpenOptions struct {
	Fs     afero.Fs
	Logger zerolog.Logger
	Memory *mediapath.MemoryRange
	// DefaultSpeed is the frame rate of image sequences without own timing
	DefaultSpeed otime.Rate
	IO           map[string]string
}

type Factory func(p mediapath.Path, opts OpenOptions) (Reader, error)

type Plugin struct {
	Name       string
	Type       FileType
	Extensions []string
	Open       Factory
}

// Registry maps file extensions to plugins
type Registry struct {
	plugins []Plugin
	byExt   map[string]int
}

func NewRegistry(plugins ...Plugin) *Registry {
	r := &Registry{byExt: make(map[string]int)}
	for _, p := range plugins {
		r.Register(p)
	}
	return r
}

// Register adds p, later registrations win for shared extensions
func (r *Registry) Register(p Plugin) {
	r.plugins = append(r.plugins, p)
	for _, ext := range p.Extensions {
		r.byExt[strings.ToLower(strings.TrimPrefix(ext, "."))] = len(r.plugins) - 1
	}
}

// Lookup finds the plugin for the extension of p
func (r *Registry) Lookup(p mediapath.Path) (Plugin, bool) {
	i, ok := r.byExt[p.Ext()]
	if !ok {
		return Plugin{}, false
	}
	return r.plugins[i], true
}

// TypeOf classifies p by extension
func (r *Registry) TypeOf(p mediapath.Path) FileType {
	plugin, ok := r.Lookup(p)
	if !ok {
		return Unknown
	}
	return plugin.Type
}

// Extensions lists the registered extensions of type t
func (r *Registry) Extensions(t FileType) []string {
	exts := lo.FilterMap(lo.Keys(r.byExt), func(ext string, _ int) (string, bool) {
		return ext, r.plugins[r.byExt[ext]].Type == t
	})
	slices.Sort(exts)
	return exts
}

// Open constructs a reader for p
func (r *Registry) Open(p mediapath.Path, opts OpenOptions) (Reader, error) {
	plugin, ok := r.Lookup(p)
	if !ok {
		return nil, fmt.Errorf("%s: %w", p.String(), ErrUnsupported)
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if !opts.DefaultSpeed.IsValid() {
		opts.DefaultSpeed = otime.Rate24
	}
	return plugin.Open(p, opts)
}
