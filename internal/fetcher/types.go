package fetcher

import "context"

// ProgressFunc receives stage-local progress in [0, 1].
type ProgressFunc func(fraction float64)

// Options are the per-request network settings.
type Options struct {
	// Proxy is an http(s) or socks5 endpoint; empty means direct.
	Proxy string
	// UseCredentials imports locally stored browser cookies for the site.
	UseCredentials bool
}

// ProbeResult is the metadata of a video, fetched without downloading media.
type ProbeResult struct {
	ID         string
	Title      string
	Duration   float64
	Platform   string
	WebpageURL string
	// Manual and Auto list caption track languages as reported by the site.
	Manual []string
	Auto   []string
}

// Track selects one caption track.
type Track struct {
	Language string
	Auto     bool
}

func (t Track) String() string {
	if t.Auto {
		return t.Language + " (auto)"
	}
	return t.Language
}

// SubtitleArtifact is a caption file on disk.
type SubtitleArtifact struct {
	Path  string
	Track Track
	// Ext is the wire format extension, vtt or srt.
	Ext string
}

// AudioArtifact is an audio file on disk.
type AudioArtifact struct {
	Path string
}

// Fetcher talks to the media host. Every call blocks until done, honors ctx
// cancellation, and reports progress when a callback is supplied.
type Fetcher interface {
	Probe(ctx context.Context, url string, opts Options) (ProbeResult, error)
	FetchSubtitle(ctx context.Context, url string, track Track, dir string, opts Options, progress ProgressFunc) (SubtitleArtifact, error)
	FetchAudio(ctx context.Context, url, dir string, opts Options, progress ProgressFunc) (AudioArtifact, error)
}

// Acquisition is the outcome of Stage.Acquire: exactly one of
// SubtitlePresent, AudioOnly, or NeitherAvailable.
type Acquisition interface {
	isAcquisition()
}

// SubtitlePresent carries a usable caption track.
type SubtitlePresent struct {
	Info     ProbeResult
	Subtitle SubtitleArtifact
}

// AudioOnly carries downloaded audio. Reason says why captions were not used.
type AudioOnly struct {
	Info   ProbeResult
	Audio  AudioArtifact
	Reason string
}

// NeitherAvailable means the video exists but offers neither a caption track
// nor an audio stream.
type NeitherAvailable struct {
	Info   ProbeResult
	Reason string
}

func (SubtitlePresent) isAcquisition()  {}
func (AudioOnly) isAcquisition()        {}
func (NeitherAvailable) isAcquisition() {}
