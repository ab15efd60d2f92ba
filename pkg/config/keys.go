package config

// Configuration keys, the environment variable is TLPLAY_ plus the key
// in upper case with dots replaced by underscores.
const (
	TimelineVideoRequestCount          = "timeline.video_request_count"
	TimelineAudioRequestCount          = "timeline.audio_request_count"
	TimelineRequestTimeout             = "timeline.request_timeout"
	TimelineReadTimeout                = "timeline.read_timeout"
	TimelineFileSequenceAudio          = "timeline.file_sequence_audio"
	TimelineFileSequenceAudioFileName  = "timeline.file_sequence_audio_file_name"
	TimelineFileSequenceAudioDirectory = "timeline.file_sequence_audio_directory"
	TimelineSequenceDefaultSpeed       = "timeline.sequence_default_speed"
	TimelineIO                         = "timeline.io"
	TimelineStatsInterval              = "timeline.stats_interval"

	PlayerReadAhead       = "player.read_ahead"
	PlayerReadBehind      = "player.read_behind"
	PlayerTickInterval    = "player.tick_interval"
	PlayerRequestCount    = "player.request_count"
	PlayerAudioSampleRate = "player.audio_sample_rate"
	PlayerAudioChannels   = "player.audio_channels"
	PlayerSpeed           = "player.speed"
	PlayerLoop            = "player.loop"
	PlayerVolume          = "player.volume"

	LogLevel  = "log.level"
	LogFormat = "log.format"

	HTTPListen = "http.listen"
)
