package table

import (
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

// IsRemote reports whether the input path is an http(s) URL.
func IsRemote(p string) bool {
	return strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://")
}

// Fetch downloads a remote table file into dir and returns the local path.
// The download completes before any processing starts.
func Fetch(rawURL, dir string, timeout time.Duration) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid input URL: %w", err)
	}

	name := path.Base(u.Path)
	if name == "" || name == "/" || name == "." {
		name = "input"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create download directory: %w", err)
	}
	dest := filepath.Join(dir, name)

	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)

	resp, err := client.R().SetOutput(dest).Get(rawURL)
	if err != nil {
		return "", fmt.Errorf("failed to download %s: %w", rawURL, err)
	}
	if resp.IsError() {
		os.Remove(dest)
		return "", fmt.Errorf("failed to download %s: HTTP %d", rawURL, resp.StatusCode())
	}

	log.Info().
		Str("url", rawURL).
		Str("path", dest).
		Dur("elapsed", resp.Time()).
		Msg("Remote feature table downloaded")

	return dest, nil
}
