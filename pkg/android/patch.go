// Package android mutates the generated native project: build descriptor,
// manifest, style resource and launcher icons. Every patch is idempotent;
// applying it twice yields the same file content as applying it once.
package android

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/apkforge/apkforge/pkg/logger"
	"github.com/apkforge/apkforge/pkg/types"
)

const (
	styleName             = "AppTheme.NoActionBar"
	styleParentDefault    = "Theme.AppCompat.DayNight.NoActionBar"
	styleParentFullscreen = "Theme.AppCompat.NoActionBar.Fullscreen"

	// resolutionMarker guards the dependency-resolution override so
	// re-application is a no-op.
	resolutionMarker = "// apkforge: pin androidx.core artifacts"
)

const safeAreaItems = `        <item name="android:statusBarColor">@android:color/transparent</item>
        <item name="android:windowTranslucentStatus">false</item>
        <item name="android:fitsSystemWindows">true</item>
        <item name="android:windowFullscreen">false</item>`

const fullscreenItems = `        <item name="android:windowFullscreen">true</item>`

const resolutionBlock = resolutionMarker + `
configurations.all {
    resolutionStrategy {
        force 'androidx.core:core:1.12.0'
        force 'androidx.core:core-ktx:1.12.0'
    }
}`

var (
	versionCodeRe = regexp.MustCompile(`versionCode\s+\d+`)
	versionNameRe = regexp.MustCompile(`versionName\s+"[^"]*"`)
)

// Patcher applies display and versioning customizations to a generated
// Android project rooted at androidDir.
type Patcher struct {
	androidDir string
	logger     logger.Logger
}

// NewPatcher creates a patcher for the given native project directory
func NewPatcher(androidDir string, log logger.Logger) *Patcher {
	return &Patcher{androidDir: androidDir, logger: log}
}

func (p *Patcher) appGradlePath() string {
	return filepath.Join(p.androidDir, "app", "build.gradle")
}

func (p *Patcher) manifestPath() string {
	return filepath.Join(p.androidDir, "app", "src", "main", "AndroidManifest.xml")
}

func (p *Patcher) stylesPath() string {
	return filepath.Join(p.androidDir, "app", "src", "main", "res", "values", "styles.xml")
}

// Apply runs all patch operations for a request and returns their results
// keyed by operation name. A missing target file skips its operation,
// reported through the result reason rather than an error.
func (p *Patcher) Apply(req types.BuildRequest) map[string]types.PatchResult {
	return map[string]types.PatchResult{
		"version":     p.PatchVersion(req.VersionCode, req.VersionName),
		"orientation": p.PatchOrientation(req.Orientation),
		"style":       p.PatchStyles(req.Fullscreen),
		"resolution":  p.PatchDependencyResolution(),
	}
}

// PatchVersion rewrites the version-code and version-name tokens in the
// build descriptor. When no version-code token exists but a defaultConfig
// block does, both tokens are inserted freshly.
func (p *Patcher) PatchVersion(versionCode, versionName string) types.PatchResult {
	path := p.appGradlePath()
	data, err := os.ReadFile(path)
	if err != nil {
		return skipped(fmt.Sprintf("build descriptor not found: %s", path))
	}

	original := string(data)
	content := original

	if versionCodeRe.MatchString(content) {
		content = versionCodeRe.ReplaceAllString(content, "versionCode "+versionCode)
		content = versionNameRe.ReplaceAllString(content, fmt.Sprintf("versionName %q", versionName))
	} else if idx := strings.Index(content, "defaultConfig {"); idx >= 0 {
		insertAt := idx + len("defaultConfig {")
		inserted := fmt.Sprintf("\n        versionCode %s\n        versionName %q", versionCode, versionName)
		content = content[:insertAt] + inserted + content[insertAt:]
	} else {
		return skipped("no versionCode token or defaultConfig block in build descriptor")
	}

	return p.writeIfChanged(path, original, content)
}

// PatchOrientation inserts a screenOrientation attribute into the first
// activity declaration. The unconstrained sentinel never mutates the
// manifest, and an already-present attribute is left untouched.
func (p *Patcher) PatchOrientation(orientation types.Orientation) types.PatchResult {
	if orientation == types.OrientationUser {
		return skipped("orientation unconstrained")
	}

	path := p.manifestPath()
	data, err := os.ReadFile(path)
	if err != nil {
		return skipped(fmt.Sprintf("manifest not found: %s", path))
	}

	original := string(data)
	if strings.Contains(original, "android:screenOrientation") {
		return types.PatchResult{Changed: false, Reason: "orientation attribute already present"}
	}

	idx := strings.Index(original, "<activity")
	if idx < 0 {
		return skipped("no activity declaration in manifest")
	}

	insertAt := idx + len("<activity")
	attr := fmt.Sprintf("\n            android:screenOrientation=%q", string(orientation))
	content := original[:insertAt] + attr + original[insertAt:]

	return p.writeIfChanged(path, original, content)
}

// PatchStyles swaps the main style's parent between the default and the
// fullscreen variant and appends the display-mode items before the style's
// closing tag. The append is guarded by a containment check on the exact
// block text so re-application never duplicates it.
func (p *Patcher) PatchStyles(fullscreen bool) types.PatchResult {
	path := p.stylesPath()
	data, err := os.ReadFile(path)
	if err != nil {
		return skipped(fmt.Sprintf("style resource not found: %s", path))
	}

	original := string(data)
	content := original

	wantParent := styleParentDefault
	otherParent := styleParentFullscreen
	items := safeAreaItems
	if fullscreen {
		wantParent, otherParent = otherParent, wantParent
		items = fullscreenItems
	}

	styleOpen := fmt.Sprintf(`<style name=%q`, styleName)
	openIdx := strings.Index(content, styleOpen)
	if openIdx < 0 {
		return skipped(fmt.Sprintf("style %s not declared", styleName))
	}

	oldTag := fmt.Sprintf(`<style name=%q parent=%q>`, styleName, otherParent)
	newTag := fmt.Sprintf(`<style name=%q parent=%q>`, styleName, wantParent)
	content = strings.Replace(content, oldTag, newTag, 1)

	if !strings.Contains(content, items) {
		closeIdx := strings.Index(content[openIdx:], "</style>")
		if closeIdx < 0 {
			return skipped("style closing tag not found")
		}
		at := openIdx + closeIdx
		content = content[:at] + items + "\n    " + content[at:]
	}

	return p.writeIfChanged(path, original, content)
}

// PatchDependencyResolution appends a forced-version override for the
// androidx core artifacts into the first existing build descriptor,
// preventing duplicate-class failures from mismatched transitive versions.
// When no candidate exists a fresh top-level descriptor is synthesized.
func (p *Patcher) PatchDependencyResolution() types.PatchResult {
	candidates := []string{
		p.appGradlePath(),
		filepath.Join(p.androidDir, "build.gradle"),
	}

	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		original := string(data)
		if strings.Contains(original, resolutionMarker) {
			return types.PatchResult{Changed: false, Reason: "resolution override already present"}
		}
		content := strings.TrimRight(original, "\n") + "\n\n" + resolutionBlock + "\n"
		return p.writeIfChanged(path, original, content)
	}

	// No descriptor anywhere; synthesize one carrying only the override
	path := filepath.Join(p.androidDir, "build.gradle")
	if err := os.MkdirAll(p.androidDir, 0755); err != nil {
		return skipped(fmt.Sprintf("cannot create native project dir: %v", err))
	}
	if err := os.WriteFile(path, []byte(resolutionBlock+"\n"), 0644); err != nil {
		return skipped(fmt.Sprintf("cannot write build descriptor: %v", err))
	}
	p.logf("Synthesized %s with resolution override", path)
	return types.PatchResult{Changed: true}
}

// writeIfChanged persists content only when it differs from the original
func (p *Patcher) writeIfChanged(path, original, content string) types.PatchResult {
	if content == original {
		return types.PatchResult{Changed: false, Reason: "already patched"}
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return skipped(fmt.Sprintf("cannot write %s: %v", path, err))
	}
	p.logf("Patched %s", path)
	return types.PatchResult{Changed: true}
}

func skipped(reason string) types.PatchResult {
	return types.PatchResult{Changed: false, Reason: reason}
}

func (p *Patcher) logf(format string, args ...interface{}) {
	if p.logger != nil {
		p.logger.Info(fmt.Sprintf(format, args...))
	}
}
