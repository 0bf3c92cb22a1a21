package ffmpegdecoder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/user/vidshrink/pkg/adapters/ffmpeg"
	"github.com/user/vidshrink/pkg/ports"
)

// probeOutput is the subset of `ffprobe -print_format json` we read.
type probeOutput struct {
	Streams []struct {
		CodecType    string `json:"codec_type"`
		CodecName    string `json:"codec_name"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		RFrameRate   string `json:"r_frame_rate"`
		AvgFrameRate string `json:"avg_frame_rate"`
		Duration     string `json:"duration"`
	} `json:"streams"`
	Format struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
	} `json:"format"`
}

func runProbe(ctx context.Context, ffprobePath, path string) (ports.MediaInfo, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, ffprobePath,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return ports.MediaInfo{}, fmt.Errorf("ffprobe failed: %w\nstderr: %s", err, ffmpeg.Tail(stderr.String(), 512))
	}
	return parseProbe(stdout.Bytes())
}

// parseProbe converts ffprobe JSON into MediaInfo.
func parseProbe(data []byte) (ports.MediaInfo, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return ports.MediaInfo{}, fmt.Errorf("parse ffprobe output: %w", err)
	}

	var info ports.MediaInfo
	videoFound := false
	var streamDuration time.Duration
	for _, s := range out.Streams {
		switch s.CodecType {
		case "video":
			if videoFound {
				continue
			}
			videoFound = true
			info.Width = s.Width
			info.Height = s.Height
			info.VideoCodec = s.CodecName
			info.FrameRate = parseRate(s.AvgFrameRate)
			if info.FrameRate == 0 {
				info.FrameRate = parseRate(s.RFrameRate)
			}
			streamDuration = parseSeconds(s.Duration)
		case "audio":
			info.HasAudio = true
		}
	}
	if !videoFound {
		return ports.MediaInfo{}, fmt.Errorf("%w: no video stream", ErrUnsupported)
	}

	info.Duration = parseSeconds(out.Format.Duration)
	if info.Duration == 0 {
		info.Duration = streamDuration
	}
	info.Container = containerName(out.Format.FormatName)
	return info, nil
}

// parseRate parses "30000/1001" or "25".
func parseRate(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !ok {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

func parseSeconds(s string) time.Duration {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		return 0
	}
	return time.Duration(f * float64(time.Second))
}

// containerName picks a short name from ffprobe's comma-separated list.
func containerName(formatName string) string {
	switch {
	case strings.Contains(formatName, "mp4"):
		return "mp4"
	case strings.Contains(formatName, "webm"):
		return "webm"
	case strings.Contains(formatName, "matroska"):
		return "matroska"
	}
	name, _, _ := strings.Cut(formatName, ",")
	return name
}
