package pipeline

import (
	"strings"
)

// EncodeTarget is a container/codec pair a runtime may be asked to record.
type EncodeTarget struct {
	MIMEType   string // Full MIME string, "" for the runtime default
	Container  string // "webm", "mp4", ...
	VideoCodec string // First video codec named, "" if unspecified
	AudioCodec string // First audio codec named, "" if none
}

var audioCodecPrefixes = []string{"opus", "vorbis", "mp4a", "aac", "flac", "mp3", "pcm"}

// ParseTarget parses MIME strings such as `video/webm;codecs=vp9,opus` or
// `video/mp4; codecs="avc1.42E01E, mp4a.40.2"`.
func ParseTarget(mimeType string) EncodeTarget {
	t := EncodeTarget{MIMEType: strings.TrimSpace(mimeType)}
	if t.MIMEType == "" {
		return t
	}

	parts := strings.Split(t.MIMEType, ";")
	mediaType := strings.ToLower(strings.TrimSpace(parts[0]))
	if i := strings.IndexByte(mediaType, '/'); i >= 0 {
		t.Container = mediaType[i+1:]
	} else {
		t.Container = mediaType
	}

	for _, param := range parts[1:] {
		key, value, ok := strings.Cut(strings.TrimSpace(param), "=")
		if !ok || strings.ToLower(strings.TrimSpace(key)) != "codecs" {
			continue
		}
		value = strings.Trim(strings.TrimSpace(value), `"'`)
		for _, codec := range strings.Split(value, ",") {
			codec = strings.TrimSpace(codec)
			if codec == "" {
				continue
			}
			if isAudioCodec(codec) {
				if t.AudioCodec == "" {
					t.AudioCodec = codec
				}
			} else if t.VideoCodec == "" {
				t.VideoCodec = codec
			}
		}
	}
	return t
}

func isAudioCodec(codec string) bool {
	codec = strings.ToLower(codec)
	for _, p := range audioCodecPrefixes {
		if strings.HasPrefix(codec, p) {
			return true
		}
	}
	return false
}

// IsDefault reports whether the target leaves the choice to the runtime.
func (t EncodeTarget) IsDefault() bool {
	return t.MIMEType == ""
}

// HasAudio reports whether the target names an audio codec.
func (t EncodeTarget) HasAudio() bool {
	return t.AudioCodec != ""
}

// Extension returns the file extension for the container, with the dot.
func (t EncodeTarget) Extension() string {
	switch t.Container {
	case "webm":
		return ".webm"
	case "mp4":
		return ".mp4"
	case "x-matroska", "matroska":
		return ".mkv"
	case "quicktime":
		return ".mov"
	case "ogg":
		return ".ogv"
	default:
		return ".webm"
	}
}

// String returns the MIME type or "runtime-default".
func (t EncodeTarget) String() string {
	if t.IsDefault() {
		return "runtime-default"
	}
	return t.MIMEType
}
