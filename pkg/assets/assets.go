// Package assets stages built web assets into the canonical web root
package assets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/apkforge/apkforge/pkg/detect"
	"github.com/apkforge/apkforge/pkg/logger"
	"github.com/apkforge/apkforge/pkg/types"
	"github.com/apkforge/apkforge/pkg/utils"
)

// WebRootName is the single directory the wrapping toolkit is configured to
// package, regardless of where the original project produced its assets.
const WebRootName = "web"

// fallbackExcludes are top-level entries never copied by the defensive
// fallback: version-control metadata, dependency cache, native-project
// output and the web root itself.
var fallbackExcludes = map[string]bool{
	".git":         true,
	"node_modules": true,
	"android":      true,
	WebRootName:    true,
}

const viewportMeta = `<meta name="viewport" content="width=device-width, initial-scale=1.0, viewport-fit=cover">`

const safeAreaStyle = `<style id="apkforge-safe-area">
  body { padding-top: env(safe-area-inset-top); }
</style>`

// Stager copies assets into the web root and applies display tweaks
type Stager struct {
	logger logger.Logger
}

// NewStager creates an asset stager
func NewStager(log logger.Logger) *Stager {
	return &Stager{logger: log}
}

// Stage aggregates the project's web assets under projectDir/web. A build
// output directory wins; otherwise the project root is copied with known
// non-asset directories filtered out. The stage guarantees some entry page
// exists afterwards when one can be found anywhere, trading correctness for
// pipeline forward-progress.
func (s *Stager) Stage(layout types.ProjectLayout, projectDir string, fullscreen bool) error {
	webRoot := filepath.Join(projectDir, WebRootName)
	if err := utils.EnsureDirectory(webRoot); err != nil {
		return fmt.Errorf("failed to create web root: %w", err)
	}

	if layout.BuildOutputDir != "" {
		s.logf("Copying build output from %s", layout.BuildOutputDir)
		if err := utils.CopyDirectory(layout.BuildOutputDir, webRoot); err != nil {
			return fmt.Errorf("failed to copy build output: %w", err)
		}
	} else {
		s.logf("No build output directory found, copying project files")
		if err := s.copyFallback(projectDir, webRoot); err != nil {
			return fmt.Errorf("failed to copy project files: %w", err)
		}
	}

	if !detect.HasEntryPage(webRoot) {
		s.synthesizeRedirect(webRoot)
	}

	if !fullscreen {
		// Best effort; a page without the expected markers is left alone
		s.injectSafeArea(webRoot)
	}

	return nil
}

// copyFallback copies every top-level entry except known non-asset dirs
func (s *Stager) copyFallback(projectDir, webRoot string) error {
	entries, err := os.ReadDir(projectDir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if fallbackExcludes[entry.Name()] {
			continue
		}
		src := filepath.Join(projectDir, entry.Name())
		dst := filepath.Join(webRoot, entry.Name())
		if entry.IsDir() {
			if err := utils.CopyDirectory(src, dst); err != nil {
				return err
			}
		} else {
			if err := utils.CopyFile(src, dst); err != nil {
				return err
			}
		}
	}

	return nil
}

// synthesizeRedirect writes a one-line redirect page when a nested entry
// page exists below the web root. The redirect may 404; the wrapping stage
// only needs something to reference.
func (s *Stager) synthesizeRedirect(webRoot string) {
	nested := detect.FindNestedEntryPage(webRoot)
	if nested == "" {
		return
	}

	rel, err := filepath.Rel(webRoot, nested)
	if err != nil {
		return
	}

	page := fmt.Sprintf(`<meta http-equiv="refresh" content="0; url=./%s">`+"\n", filepath.ToSlash(rel))
	if err := os.WriteFile(filepath.Join(webRoot, "index.html"), []byte(page), 0644); err != nil {
		s.logf("Failed to write redirect page: %v", err)
		return
	}
	s.logf("Synthesized redirect entry page to %s", rel)
}

// injectSafeArea adds a viewport-fit directive and a safe-area style block
// to the entry page. Missing page or missing head markers skip the
// injection without failing the build. Re-application is a no-op.
func (s *Stager) injectSafeArea(webRoot string) {
	indexPath := detect.FindEntryPage(webRoot)
	if indexPath == "" {
		return
	}

	data, err := os.ReadFile(indexPath)
	if err != nil {
		return
	}
	html := string(data)

	html = ensureViewport(html)

	if !strings.Contains(html, safeAreaStyle) {
		if idx := strings.Index(html, "</head>"); idx >= 0 {
			html = html[:idx] + safeAreaStyle + "\n" + html[idx:]
		}
	}

	if html != string(data) {
		if err := os.WriteFile(indexPath, []byte(html), 0644); err != nil {
			s.logf("Failed to update entry page: %v", err)
			return
		}
		s.logf("Applied safe-area viewport tweaks to entry page")
	}
}

// ensureViewport amends an existing viewport meta or inserts a fresh one
func ensureViewport(html string) string {
	idx := strings.Index(html, `name="viewport"`)
	if idx < 0 {
		if headIdx := strings.Index(html, "<head>"); headIdx >= 0 {
			insertAt := headIdx + len("<head>")
			return html[:insertAt] + "\n" + viewportMeta + html[insertAt:]
		}
		return html
	}

	// Locate the content attribute of the existing directive
	tagEnd := strings.Index(html[idx:], ">")
	if tagEnd < 0 {
		return html
	}
	tag := html[idx : idx+tagEnd]
	if strings.Contains(tag, "viewport-fit") {
		return html
	}

	contentIdx := strings.Index(tag, `content="`)
	if contentIdx < 0 {
		return html
	}
	valueStart := contentIdx + len(`content="`)
	valueEnd := strings.Index(tag[valueStart:], `"`)
	if valueEnd < 0 {
		return html
	}

	patched := tag[:valueStart+valueEnd] + ", viewport-fit=cover" + tag[valueStart+valueEnd:]
	return html[:idx] + patched + html[idx+tagEnd:]
}

func (s *Stager) logf(format string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Info(fmt.Sprintf(format, args...))
	}
}
