package android

import (
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/apkforge/apkforge/pkg/logger"
	"github.com/apkforge/apkforge/pkg/utils"
)

// densityBuckets are the resource directories that must carry the launcher
// icon under both conventional file names.
var densityBuckets = []string{
	"mipmap-mdpi",
	"mipmap-hdpi",
	"mipmap-xhdpi",
	"mipmap-xxhdpi",
	"mipmap-xxxhdpi",
}

var iconNames = []string{"ic_launcher.png", "ic_launcher_round.png"}

// adaptiveIconDir holds the adaptive-icon definitions that would otherwise
// shadow the per-density icons.
const adaptiveIconDir = "mipmap-anydpi-v26"

// IconInstaller replaces the default launcher icon across all density
// buckets. Icon application is best effort and never fails a build.
type IconInstaller struct {
	client *http.Client
	logger logger.Logger
}

// NewIconInstaller creates an icon installer
func NewIconInstaller(log logger.Logger) *IconInstaller {
	return &IconInstaller{
		client: &http.Client{Timeout: 60 * time.Second},
		logger: log,
	}
}

// Install fetches the icon from source (an http(s) URL or a data: URI) and
// copies it into every density bucket under resDir. Per-bucket copy
// failures are logged and skipped.
func (i *IconInstaller) Install(resDir, source string) error {
	// Adaptive icons take precedence over per-density files; remove them so
	// the replacement actually shows up.
	if err := os.RemoveAll(filepath.Join(resDir, adaptiveIconDir)); err != nil {
		i.logf("Failed to remove adaptive icon dir: %v", err)
	}

	iconFile, err := i.fetchIcon(source)
	if err != nil {
		return err
	}
	defer os.Remove(iconFile)

	for _, bucket := range densityBuckets {
		for _, name := range iconNames {
			dst := filepath.Join(resDir, bucket, name)
			if err := utils.CopyFile(iconFile, dst); err != nil {
				i.logf("Skipping icon for %s: %v", bucket, err)
				break
			}
		}
	}

	return nil
}

// fetchIcon materializes the icon source into a temporary file
func (i *IconInstaller) fetchIcon(source string) (string, error) {
	if strings.HasPrefix(source, "data:") {
		return i.decodeDataURI(source)
	}
	return i.download(source)
}

func (i *IconInstaller) download(url string) (string, error) {
	resp, err := i.client.Get(url)
	if err != nil {
		return "", fmt.Errorf("icon download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("icon download failed: status %d from %s", resp.StatusCode, url)
	}

	tmp, err := os.CreateTemp("", "apkforge-icon-*.png")
	if err != nil {
		return "", err
	}
	defer tmp.Close()

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("icon download failed: %w", err)
	}

	return tmp.Name(), nil
}

func (i *IconInstaller) decodeDataURI(uri string) (string, error) {
	comma := strings.Index(uri, ",")
	if comma < 0 {
		return "", fmt.Errorf("malformed data URI icon source")
	}

	data, err := base64.StdEncoding.DecodeString(uri[comma+1:])
	if err != nil {
		return "", fmt.Errorf("failed to decode inline icon: %w", err)
	}

	tmp, err := os.CreateTemp("", "apkforge-icon-*.png")
	if err != nil {
		return "", err
	}
	defer tmp.Close()

	if _, err := tmp.Write(data); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}

	return tmp.Name(), nil
}

func (i *IconInstaller) logf(format string, args ...interface{}) {
	if i.logger != nil {
		i.logger.Warn(fmt.Sprintf(format, args...))
	}
}
