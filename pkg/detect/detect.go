// Package detect classifies a cloned repository into a build mode
package detect

import (
	"os"
	"path/filepath"

	"github.com/apkforge/apkforge/pkg/types"
	"github.com/apkforge/apkforge/pkg/utils"
)

// buildOutputCandidates are checked in priority order inside the chosen
// search root.
var buildOutputCandidates = []string{"dist", "build", "out"}

// staticExtraCandidates are additionally accepted for static projects
var staticExtraCandidates = []string{"public", "web"}

// entryPages are the file names recognized as an entry page
var entryPages = []string{"index.html", "index.htm"}

// Detect inspects a cloned tree and returns its layout. It never fails;
// absence of any candidate simply yields an empty build-output path, which
// downstream stages treat as "use fallback staging".
func Detect(rootDir string) types.ProjectLayout {
	layout := types.ProjectLayout{
		HasRootManifest: utils.FileExists(filepath.Join(rootDir, "package.json")),
		HasFrontendDir:  utils.DirectoryExists(filepath.Join(rootDir, "frontend")),
	}

	searchRoot := rootDir
	switch {
	case layout.HasFrontendDir:
		layout.Mode = types.BuildModeNestedFrontend
		searchRoot = filepath.Join(rootDir, "frontend")
	case layout.HasRootManifest:
		layout.Mode = types.BuildModeRootProject
	default:
		layout.Mode = types.BuildModeStatic
	}

	layout.BuildOutputDir = findBuildOutput(searchRoot, layout.Mode)
	return layout
}

// findBuildOutput returns the first matching output directory, or "" when
// nothing recognizable exists.
func findBuildOutput(searchRoot string, mode types.BuildMode) string {
	for _, name := range buildOutputCandidates {
		dir := filepath.Join(searchRoot, name)
		if utils.DirectoryExists(dir) {
			return dir
		}
	}

	if mode != types.BuildModeStatic {
		return ""
	}

	for _, name := range staticExtraCandidates {
		dir := filepath.Join(searchRoot, name)
		if utils.DirectoryExists(dir) {
			return dir
		}
	}

	// The root itself counts for static projects when an entry page sits at
	// shallow depth.
	if HasEntryPage(searchRoot) {
		return searchRoot
	}

	return ""
}

// HasEntryPage reports whether dir directly contains a recognized entry page
func HasEntryPage(dir string) bool {
	for _, name := range entryPages {
		if utils.FileExists(filepath.Join(dir, name)) {
			return true
		}
	}
	return false
}

// FindEntryPage returns the path of the first entry page directly under dir,
// or "" when none exists.
func FindEntryPage(dir string) string {
	for _, name := range entryPages {
		path := filepath.Join(dir, name)
		if utils.FileExists(path) {
			return path
		}
	}
	return ""
}

// FindNestedEntryPage searches one level below dir for an entry page,
// skipping dot directories. Used to synthesize a redirect page when the
// canonical web root has none.
func FindNestedEntryPage(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name()[0] == '.' {
			continue
		}
		if page := FindEntryPage(filepath.Join(dir, entry.Name())); page != "" {
			return page
		}
	}
	return ""
}
