package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/user/vidshrink/pkg/pipeline"
	"github.com/user/vidshrink/pkg/ports"
)

// minSuffix marks a compressed file whose natural name is taken.
const minSuffix = ".min"

// outputPaths hands out output paths for one run. A path never resolves to
// an input file and is never given out twice, so concurrent jobs with the
// same base name cannot overwrite each other or their sources.
type outputPaths struct {
	dir string

	mu      sync.Mutex
	taken   map[string]bool
	sources map[string]bool
}

func newOutputPaths(dir string, inputs []string) *outputPaths {
	o := &outputPaths{
		dir:     dir,
		taken:   make(map[string]bool),
		sources: make(map[string]bool, len(inputs)),
	}
	for _, in := range inputs {
		o.sources[absPath(in)] = true
	}
	return o
}

// claim reserves a free path for filename together with the poster path
// that shares its base name. posterExt is empty when there is no poster.
func (o *outputPaths) claim(filename, posterExt string) (string, string) {
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)

	o.mu.Lock()
	defer o.mu.Unlock()
	for n := 0; ; n++ {
		name := base
		switch {
		case n == 1:
			name += minSuffix
		case n > 1:
			name += fmt.Sprintf("%s-%d", minSuffix, n)
		}

		video := filepath.Join(o.dir, name+ext)
		poster := ""
		if posterExt != "" {
			poster = filepath.Join(o.dir, name+"."+posterExt)
		}
		if o.blocked(video) || (poster != "" && o.blocked(poster)) {
			continue
		}
		o.taken[absPath(video)] = true
		if poster != "" {
			o.taken[absPath(poster)] = true
		}
		return video, poster
	}
}

func (o *outputPaths) blocked(p string) bool {
	abs := absPath(p)
	return o.sources[abs] || o.taken[abs]
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}

// writeOutputs stores the video and its poster next to each other and
// returns both paths. The poster path is empty when there is no poster.
func writeOutputs(fs ports.FileSystem, paths *outputPaths, result pipeline.CompressionResult) (string, string, error) {
	thumb := result.Thumbnail
	posterExt := ""
	if thumb != nil && len(thumb.Data) > 0 {
		posterExt = thumbnailExt(thumb.MIMEType)
	}

	path, thumbPath := paths.claim(result.File.Filename, posterExt)
	if err := fs.WriteFile(path, result.File.Data); err != nil {
		return "", "", err
	}
	if thumbPath == "" {
		return path, "", nil
	}
	if err := fs.WriteFile(thumbPath, thumb.Data); err != nil {
		return path, "", err
	}
	return path, thumbPath, nil
}

func thumbnailExt(mimeType string) string {
	switch mimeType {
	case "image/png":
		return "png"
	case "image/webp":
		return "webp"
	default:
		return "jpg"
	}
}
