package chromeruntime

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// ErrChromeNotFound is returned when no browser executable can be located.
var ErrChromeNotFound = errors.New("chromeruntime: chrome not found: install Chrome/Chromium, set CHROME_PATH, or use --chrome-path")

// ResolveChromePath returns the browser executable.
// Priority: 1) explicitPath, 2) CHROME_PATH env, 3) system locations (Chromium before Chrome)
func ResolveChromePath(explicitPath string) (string, error) {
	if explicitPath != "" {
		return explicitPath, nil
	}
	if envPath := os.Getenv("CHROME_PATH"); envPath != "" {
		return envPath, nil
	}
	for _, candidate := range systemCandidates(runtime.GOOS) {
		if path := lookExecutable(candidate); path != "" {
			return path, nil
		}
	}
	return "", ErrChromeNotFound
}

// systemCandidates lists default install locations or command names for goos.
func systemCandidates(goos string) []string {
	switch goos {
	case "darwin":
		return []string{
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			"/Applications/Google Chrome Canary.app/Contents/MacOS/Google Chrome Canary",
		}
	case "windows":
		var out []string
		for _, env := range []string{"PROGRAMFILES", "PROGRAMFILES(X86)", "LOCALAPPDATA"} {
			base := os.Getenv(env)
			if base == "" {
				continue
			}
			out = append(out,
				filepath.Join(base, "Chromium", "Application", "chrome.exe"),
				filepath.Join(base, "Google", "Chrome", "Application", "chrome.exe"),
			)
		}
		return out
	default:
		return []string{
			"chromium",
			"chromium-browser",
			"google-chrome-stable",
			"google-chrome",
			"headless-shell",
		}
	}
}

// lookExecutable stats absolute paths and searches PATH for bare names.
func lookExecutable(nameOrPath string) string {
	if filepath.IsAbs(nameOrPath) {
		if _, err := os.Stat(nameOrPath); err == nil {
			return nameOrPath
		}
		return ""
	}
	if path, err := exec.LookPath(nameOrPath); err == nil {
		return path
	}
	return ""
}
