package render

import (
	"os"
	"os/exec"
	"path/filepath"

	"github.com/jmylchreest/pixscout/internal/logger"
)

// ChromePathEnv overrides browser discovery when set.
const ChromePathEnv = "PIXSCOUT_CHROME_PATH"

// Chrome/Chromium binaries by PATH name, then by common install location.
var chromeCandidates = []string{
	"google-chrome-stable",
	"google-chrome",
	"chromium",
	"chromium-browser",
	"chrome",
	"headless-shell",
	"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
	"/Applications/Chromium.app/Contents/MacOS/Chromium",
	"/usr/bin/google-chrome-stable",
	"/usr/bin/chromium",
	"/snap/bin/chromium",
	`C:\Program Files\Google\Chrome\Application\chrome.exe`,
	`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
}

// FindChromePath returns the browser binary to launch. An explicit path
// wins, then $PIXSCOUT_CHROME_PATH, then the first candidate found. An
// empty result leaves discovery to chromedp.
func FindChromePath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if env := os.Getenv(ChromePathEnv); env != "" {
		return env
	}
	for _, name := range chromeCandidates {
		if filepath.IsAbs(name) || filepath.VolumeName(name) != "" {
			if st, err := os.Stat(name); err == nil && !st.IsDir() {
				logger.Debug("found browser binary", "path", name)
				return name
			}
			continue
		}
		if p, err := exec.LookPath(name); err == nil {
			logger.Debug("found browser binary", "name", name, "path", p)
			return p
		}
	}
	logger.Warn("no Chrome binary found, rendering mode may not work")
	return ""
}
