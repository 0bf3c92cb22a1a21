// Package mp4probe reads container metadata from MP4 payloads without
// decoding any frames.
package mp4probe

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/Eyevinn/mp4ff/mp4"

	"github.com/user/vidshrink/pkg/ports"
)

// ErrNotMP4 is returned for payloads without an ISO-BMFF header.
var ErrNotMP4 = errors.New("mp4probe: not an mp4 payload")

// ErrNoVideoTrack is returned when the container holds no video track.
var ErrNoVideoTrack = errors.New("mp4probe: no video track found")

// Video sample entry types mapped to codec names.
var codecNames = map[string]string{
	"avc1": "avc1",
	"avc3": "avc1",
	"hvc1": "hvc1",
	"hev1": "hvc1",
	"av01": "av01",
	"vp08": "vp8",
	"vp09": "vp9",
	"mp4v": "mp4v",
	"jpeg": "jpeg",
	"mjpa": "jpeg",
	"mjpb": "jpeg",
}

// IsMP4 reports whether data starts with an ftyp, styp or moov box.
func IsMP4(data []byte) bool {
	if len(data) < 8 {
		return false
	}
	switch string(data[4:8]) {
	case "ftyp", "styp", "moov":
		return true
	}
	return false
}

// Probe parses an MP4 payload and returns its metadata.
func Probe(data []byte) (ports.MediaInfo, error) {
	if !IsMP4(data) {
		return ports.MediaInfo{}, ErrNotMP4
	}

	file, err := mp4.DecodeFile(bytes.NewReader(data))
	if err != nil {
		return ports.MediaInfo{}, fmt.Errorf("decode mp4: %w", err)
	}

	return FromFile(file)
}

// FromFile extracts metadata from an already decoded file.
func FromFile(file *mp4.File) (ports.MediaInfo, error) {
	moov := file.Moov
	if file.IsFragmented() && file.Init != nil {
		moov = file.Init.Moov
	}
	if moov == nil {
		return ports.MediaInfo{}, fmt.Errorf("%w: missing moov", ErrNoVideoTrack)
	}

	info := ports.MediaInfo{Container: "mp4"}
	var video *mp4.TrakBox
	for _, trak := range moov.Traks {
		switch handlerType(trak) {
		case "vide":
			if video == nil {
				video = trak
			}
		case "soun":
			info.HasAudio = true
		}
	}
	if video == nil {
		return ports.MediaInfo{}, ErrNoVideoTrack
	}

	info.Width, info.Height = trackDimensions(video)
	info.VideoCodec = sampleEntryCodec(video)

	var duration time.Duration
	var samples int
	if file.IsFragmented() {
		duration, samples, _ = fragmentedTiming(file, video)
	} else {
		duration, samples = progressiveTiming(moov, video)
	}
	info.Duration = duration
	if duration > 0 && samples > 0 {
		info.FrameRate = float64(samples) / duration.Seconds()
	}

	return info, nil
}

// VideoTrack returns the first video track of the file with its trex, if
// the file is fragmented.
func VideoTrack(file *mp4.File) (*mp4.TrakBox, *mp4.TrexBox) {
	moov := file.Moov
	if file.IsFragmented() && file.Init != nil {
		moov = file.Init.Moov
	}
	if moov == nil {
		return nil, nil
	}
	for _, trak := range moov.Traks {
		if handlerType(trak) != "vide" {
			continue
		}
		var trex *mp4.TrexBox
		if moov.Mvex != nil {
			for _, t := range moov.Mvex.Trexs {
				if t.TrackID == trak.Tkhd.TrackID {
					trex = t
					break
				}
			}
		}
		return trak, trex
	}
	return nil, nil
}

// Timescale returns the media timescale of a track, 1000 when unset.
func Timescale(trak *mp4.TrakBox) uint32 {
	if trak.Mdia != nil && trak.Mdia.Mdhd != nil && trak.Mdia.Mdhd.Timescale > 0 {
		return trak.Mdia.Mdhd.Timescale
	}
	return 1000
}

func handlerType(trak *mp4.TrakBox) string {
	if trak.Mdia == nil || trak.Mdia.Hdlr == nil {
		return ""
	}
	return trak.Mdia.Hdlr.HandlerType
}

func trackDimensions(trak *mp4.TrakBox) (int, int) {
	if trak.Tkhd != nil {
		w := int(uint32(trak.Tkhd.Width) >> 16)
		h := int(uint32(trak.Tkhd.Height) >> 16)
		if w > 0 && h > 0 {
			return w, h
		}
	}
	if stsd := sampleDescriptions(trak); stsd != nil {
		for _, child := range stsd.Children {
			if vse, ok := child.(*mp4.VisualSampleEntryBox); ok {
				return int(vse.Width), int(vse.Height)
			}
		}
	}
	return 0, 0
}

func sampleEntryCodec(trak *mp4.TrakBox) string {
	stsd := sampleDescriptions(trak)
	if stsd == nil {
		return ""
	}
	for _, child := range stsd.Children {
		if name, ok := codecNames[child.Type()]; ok {
			return name
		}
	}
	return ""
}

func sampleDescriptions(trak *mp4.TrakBox) *mp4.StsdBox {
	if trak.Mdia == nil || trak.Mdia.Minf == nil || trak.Mdia.Minf.Stbl == nil {
		return nil
	}
	return trak.Mdia.Minf.Stbl.Stsd
}

func progressiveTiming(moov *mp4.MoovBox, trak *mp4.TrakBox) (time.Duration, int) {
	var samples int
	if stbl := trak.Mdia.Minf.Stbl; stbl != nil && stbl.Stts != nil {
		for _, n := range stbl.Stts.SampleCount {
			samples += int(n)
		}
	}

	if trak.Mdia.Mdhd != nil && trak.Mdia.Mdhd.Duration > 0 {
		return scale(trak.Mdia.Mdhd.Duration, Timescale(trak)), samples
	}
	if moov.Mvhd != nil && moov.Mvhd.Timescale > 0 {
		return scale(moov.Mvhd.Duration, moov.Mvhd.Timescale), samples
	}
	return 0, samples
}

func fragmentedTiming(file *mp4.File, trak *mp4.TrakBox) (time.Duration, int, error) {
	_, trex := VideoTrack(file)
	trackID := trak.Tkhd.TrackID
	timescale := Timescale(trak)

	var end uint64
	var samples int
	for _, seg := range file.Segments {
		for _, frag := range seg.Fragments {
			if frag.Moof == nil {
				continue
			}
			for _, traf := range frag.Moof.Trafs {
				if traf.Tfhd.TrackID != trackID {
					continue
				}
				full, err := frag.GetFullSamples(trex)
				if err != nil {
					return 0, 0, fmt.Errorf("get samples: %w", err)
				}
				for _, s := range full {
					if t := s.DecodeTime + uint64(s.Dur); t > end {
						end = t
					}
				}
				samples += len(full)
			}
		}
	}
	return scale(end, timescale), samples, nil
}

func scale(ticks uint64, timescale uint32) time.Duration {
	if timescale == 0 {
		return 0
	}
	return time.Duration(ticks * uint64(time.Second) / uint64(timescale))
}
