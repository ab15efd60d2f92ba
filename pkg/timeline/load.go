package timeline

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/jdeisenh/tlplay/pkg/mediapath"
	"github.com/jdeisenh/tlplay/pkg/otime"
	"github.com/jdeisenh/tlplay/pkg/otio"
	"github.com/jdeisenh/tlplay/pkg/reader"
	"github.com/spf13/afero"
)

// load builds the composition and inspects the first clip of each track.
// It closes loaded when done.
func (t *Timeline) load(ctx context.Context) {
	defer close(t.loaded)
	comp, dir, err := t.loadComposition(ctx)
	if err != nil {
		// stoppedErr reads it under mu before loaded is closed
		t.mu.Lock()
		t.loadErr = err
		t.mu.Unlock()
		t.logger.Error().Err(err).Str("path", t.path).Msg("Load failed")
		return
	}
	t.comp, t.dir = comp, dir
	t.checkTransitions()
	info := Info{Path: t.path, Range: comp.Range(), Rate: videoRate(comp)}

	for _, ti := range comp.TracksOf(otio.Video) {
		ri, ok := t.firstClipInfo(ctx, ti)
		if !ok || !ri.HasVideo() {
			info.Video = append(info.Video, reader.VideoInfo{})
			continue
		}
		info.Video = append(info.Video, ri.Video[0])
	}
	for _, ti := range comp.TracksOf(otio.Audio) {
		if ri, ok := t.firstClipInfo(ctx, ti); ok && ri.HasAudio() {
			info.Audio = ri.Audio
			break
		}
	}
	t.sampleRate, t.channels = defaultSampleRate, defaultChannels
	if info.Audio.IsValid() {
		t.sampleRate, t.channels = info.Audio.SampleRate, info.Audio.Channels
	}
	t.readTimeout = t.opts.ReadTimeout
	if t.readTimeout <= 0 {
		t.readTimeout = 8 * info.Rate.FrameDuration()
	}
	t.info = info
	t.events.LogLoaded(t.path, info)
}

// checkTransitions warns about transition kinds played as a dissolve
func (t *Timeline) checkTransitions() {
	for ti, track := range t.comp.Tracks {
		for i, child := range track.Children {
			tr, ok := child.(*otio.Transition)
			if !ok || tr.Type == otio.Dissolve || tr.Type == otio.Cut {
				continue
			}
			t.logger.Warn().Int("track", ti).Int("index", i).Msgf("Unknown transition %q, using dissolve", tr.Type)
		}
	}
}

// videoRate is the rate of the first video clip, 24 without one
func videoRate(comp *otio.Composition) otime.Rate {
	for _, ti := range comp.TracksOf(otio.Video) {
		for _, child := range comp.Tracks[ti].Children {
			if clip, ok := child.(*otio.Clip); ok && clip.SourceRange.Duration.Rate.IsValid() {
				return clip.SourceRange.Duration.Rate
			}
		}
	}
	return otime.Rate24
}

// firstClipInfo returns the media info of the first clip on track ti
func (t *Timeline) firstClipInfo(ctx context.Context, ti int) (reader.Info, bool) {
	for i, child := range t.comp.Tracks[ti].Children {
		clip, ok := child.(*otio.Clip)
		if !ok || clip.MediaReference.Kind == otio.MissingRef {
			continue
		}
		r, release, ok := t.acquire(otio.ItemRef{Track: ti, Index: i}, clip)
		if !ok {
			return reader.Info{}, false
		}
		defer release()
		info, err := r.Info().Get(ctx)
		if err != nil {
			t.poison(otio.ItemRef{Track: ti, Index: i}, clip.MediaReference.Path(t.dir).String(), err)
			return reader.Info{}, false
		}
		t.events.LogReaderOpen(clip.MediaReference.Path(t.dir).String(), info)
		return info, true
	}
	return reader.Info{}, false
}

func (t *Timeline) loadComposition(ctx context.Context) (*otio.Composition, string, error) {
	if strings.EqualFold(path.Ext(t.path), ".otio") {
		data, err := afero.ReadFile(t.opts.Fs, t.path)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %w", otio.ErrStructural, err)
		}
		comp, err := otio.Decode(data)
		if err != nil {
			return nil, "", err
		}
		return comp, path.Dir(t.path), nil
	}
	comp, err := t.synthesize(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", otio.ErrStructural, err)
	}
	return comp, "", nil
}

// synthesize wraps a movie or image sequence in a composition with one
// video and at most one audio track
func (t *Timeline) synthesize(ctx context.Context) (*otio.Composition, error) {
	p := mediapath.Parse(t.path)
	info, err := t.inspect(ctx, p)
	if err != nil {
		return nil, err
	}
	comp := &otio.Composition{CompositionName: p.FileName()}
	ref := otio.MediaReference{Kind: otio.ExternalRef, TargetURL: t.path}
	if info.HasVideo() {
		start := info.VideoTime.Start
		comp.GlobalStartTime = &start
		comp.Tracks = append(comp.Tracks, &otio.Track{
			TrackName: "Video",
			Kind:      otio.Video,
			Children:  []otio.Composable{&otio.Clip{ClipName: p.FileName(), SourceRange: info.VideoTime, MediaReference: ref}},
		})
	}
	if info.HasAudio() {
		comp.Tracks = append(comp.Tracks, &otio.Track{
			TrackName: "Audio",
			Kind:      otio.Audio,
			Children:  []otio.Composable{&otio.Clip{ClipName: p.FileName(), SourceRange: info.AudioTime, MediaReference: ref}},
		})
	} else if t.opts.Registry.TypeOf(p) == reader.Sequence {
		if audioPath, ok := t.sequenceAudio(p); ok {
			if track, err := t.audioTrack(ctx, audioPath); err == nil {
				comp.Tracks = append(comp.Tracks, track)
			} else {
				t.logger.Warn().Err(err).Str("audio", audioPath).Msg("Sequence audio unusable")
			}
		}
	}
	if len(comp.Tracks) == 0 {
		return nil, fmt.Errorf("%s: no video or audio", t.path)
	}
	return comp, nil
}

// inspect opens p once to learn its ranges
func (t *Timeline) inspect(ctx context.Context, p mediapath.Path) (reader.Info, error) {
	r, release, err := t.readers.Acquire(p, nil)
	if err != nil {
		return reader.Info{}, err
	}
	defer release()
	return r.Info().Get(ctx)
}

func (t *Timeline) audioTrack(ctx context.Context, audioPath string) (*otio.Track, error) {
	p := mediapath.Parse(audioPath)
	info, err := t.inspect(ctx, p)
	if err != nil {
		return nil, err
	}
	if !info.HasAudio() {
		return nil, errors.New("no audio")
	}
	return &otio.Track{
		TrackName: "Audio",
		Kind:      otio.Audio,
		Children: []otio.Composable{&otio.Clip{
			ClipName:       p.FileName(),
			SourceRange:    info.AudioTime,
			MediaReference: otio.MediaReference{Kind: otio.ExternalRef, TargetURL: audioPath},
		}},
	}, nil
}

// sequenceAudio finds the audio file for an image sequence
func (t *Timeline) sequenceAudio(p mediapath.Path) (string, bool) {
	exts := t.opts.Registry.Extensions(reader.AudioFile)
	switch t.opts.FileSequenceAudio {
	case AudioBaseName:
		base := strings.TrimRight(p.Base, "._- ")
		for _, ext := range exts {
			candidate := p.Directory + base + "." + ext
			if ok, _ := afero.Exists(t.opts.Fs, candidate); ok {
				return candidate, true
			}
		}
	case AudioFileName:
		if t.opts.FileSequenceAudioFileName == "" {
			return "", false
		}
		candidate := mediapath.Join(p.Directory, t.opts.FileSequenceAudioFileName)
		if ok, _ := afero.Exists(t.opts.Fs, candidate); ok {
			return candidate, true
		}
	case AudioDirectory:
		dir := mediapath.Join(p.Directory, t.opts.FileSequenceAudioDirectory)
		entries, err := afero.ReadDir(t.opts.Fs, dir)
		if err != nil {
			t.logger.Debug().Err(err).Str("dir", dir).Msg("No audio directory")
			return "", false
		}
		for _, e := range entries {
			candidate := path.Join(dir, e.Name())
			if !e.IsDir() && t.opts.Registry.TypeOf(mediapath.Parse(candidate)) == reader.AudioFile {
				return candidate, true
			}
		}
	}
	return "", false
}
