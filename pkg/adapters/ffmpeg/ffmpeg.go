// Package ffmpeg locates the ffmpeg and ffprobe binaries and queries their
// capabilities. The runtime and decoder adapters share it.
package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
)

// ErrNotFound is returned when a binary cannot be located.
var ErrNotFound = errors.New("ffmpeg: binary not found")

const (
	ToolFFmpeg  = "ffmpeg"
	ToolFFprobe = "ffprobe"
)

var (
	customMu    sync.RWMutex
	customPaths = map[string]string{}
)

// SetPath overrides the location of tool ("ffmpeg" or "ffprobe").
// An empty path removes the override.
func SetPath(tool, path string) {
	customMu.Lock()
	defer customMu.Unlock()
	if path == "" {
		delete(customPaths, tool)
		return
	}
	customPaths[tool] = path
}

// FindFFmpeg returns the path of the ffmpeg binary.
func FindFFmpeg() (string, error) { return Find(ToolFFmpeg) }

// FindFFprobe returns the path of the ffprobe binary.
func FindFFprobe() (string, error) { return Find(ToolFFprobe) }

// Available reports whether both ffmpeg and ffprobe can be located.
func Available() bool {
	if _, err := FindFFmpeg(); err != nil {
		return false
	}
	_, err := FindFFprobe()
	return err == nil
}

// Find searches for tool.
// Priority: 1) SetPath override, 2) <TOOL>_PATH env, 3) PATH, 4) common locations
func Find(tool string) (string, error) {
	customMu.RLock()
	custom := customPaths[tool]
	customMu.RUnlock()
	if custom != "" {
		if _, err := os.Stat(custom); err == nil {
			return custom, nil
		}
		return "", fmt.Errorf("%w: custom path %s not found", ErrNotFound, custom)
	}

	envName := strings.ToUpper(tool) + "_PATH"
	if envPath := os.Getenv(envName); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath, nil
		}
		return "", fmt.Errorf("%w: %s %s not found", ErrNotFound, envName, envPath)
	}

	execName := tool
	if runtime.GOOS == "windows" {
		execName += ".exe"
	}
	if path, err := exec.LookPath(execName); err == nil {
		return path, nil
	}

	for _, dir := range commonDirs() {
		p := filepath.Join(dir, execName)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("%w: %s", ErrNotFound, tool)
}

func commonDirs() []string {
	switch runtime.GOOS {
	case "windows":
		return []string{
			`C:\ffmpeg\bin`,
			`C:\Program Files\ffmpeg\bin`,
			`C:\Program Files (x86)\ffmpeg\bin`,
		}
	case "darwin":
		return []string{
			"/opt/homebrew/bin",
			"/usr/local/bin",
			"/usr/bin",
		}
	default:
		return []string{
			"/usr/bin",
			"/usr/local/bin",
			"/opt/homebrew/bin",
			"/snap/bin",
		}
	}
}

// ListEncoders runs `ffmpeg -encoders` and returns the encoder names.
func ListEncoders(ctx context.Context, ffmpegPath string) (map[string]bool, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, ffmpegPath, "-hide_banner", "-encoders")
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg -encoders failed: %w\nstderr: %s", err, Tail(stderr.String(), 512))
	}
	return ParseEncoders(stdout.String()), nil
}

// ParseEncoders parses the listing printed by `ffmpeg -encoders`. Entries
// follow a "------" separator line and have the form
// " V....D libvpx-vp9  libvpx VP9".
func ParseEncoders(listing string) map[string]bool {
	encoders := make(map[string]bool)
	inList := false
	scanner := bufio.NewScanner(strings.NewReader(listing))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !inList {
			if strings.HasPrefix(line, "---") {
				inList = true
			}
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 || len(fields[0]) != 6 {
			continue
		}
		encoders[fields[1]] = true
	}
	return encoders
}

// Tail returns at most n trailing bytes of s, for error messages.
func Tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
