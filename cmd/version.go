package cmd

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/hashicorp/go-version"
	"go.uber.org/zap"
)

// AppVersion is overridden at build time with -ldflags "-X ...".
var AppVersion = "v0.0.0"

type release struct {
	TagName string `json:"tag_name"`
}

// CheckForUpdates compares AppVersion with the latest release published at
// url (a GitHub "releases/latest" style endpoint) and warns when behind.
// Failures are logged at debug and never stop the server.
func CheckForUpdates(ctx context.Context, url string, logger *zap.Logger) {
	if url == "" {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	latest, err := latestRelease(ctx, url)
	if err != nil {
		logger.Debug("Update check failed", zap.Error(err))
		return
	}

	outdated, err := IsOutdated(AppVersion, latest)
	if err != nil {
		logger.Debug("Update check failed", zap.Error(err))
		return
	}

	if outdated {
		logger.Warn("A newer release is available",
			zap.String("current", AppVersion),
			zap.String("latest", latest),
		)
	}
}

// IsOutdated reports whether current is older than latest.
func IsOutdated(current, latest string) (bool, error) {
	cur, err := version.NewVersion(current)
	if err != nil {
		return false, err
	}
	lat, err := version.NewVersion(latest)
	if err != nil {
		return false, err
	}
	return cur.LessThan(lat), nil
}

func latestRelease(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return "", &statusError{code: resp.StatusCode}
	}

	var rel release
	if err := json.NewDecoder(resp.Body).Decode(&rel); err != nil {
		return "", err
	}
	return rel.TagName, nil
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return "release endpoint returned " + http.StatusText(e.code)
}
