package assets_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/apkforge/apkforge/pkg/assets"
	"github.com/apkforge/apkforge/pkg/detect"
	"github.com/apkforge/apkforge/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestStage_CopiesBuildOutput(t *testing.T) {
	projectDir := t.TempDir()
	writeFile(t, filepath.Join(projectDir, "dist", "index.html"), "<html><head></head></html>")
	writeFile(t, filepath.Join(projectDir, "dist", "assets", "app.js"), "js")

	layout := detect.Detect(projectDir)
	stager := assets.NewStager(nil)
	require.NoError(t, stager.Stage(layout, projectDir, true))

	assert.True(t, utils.FileExists(filepath.Join(projectDir, "web", "index.html")))
	assert.True(t, utils.FileExists(filepath.Join(projectDir, "web", "assets", "app.js")))
}

func TestStage_FallbackSkipsNonAssetDirs(t *testing.T) {
	projectDir := t.TempDir()
	writeFile(t, filepath.Join(projectDir, "index.html"), "<html><head></head></html>")
	writeFile(t, filepath.Join(projectDir, "style.css"), "body{}")
	writeFile(t, filepath.Join(projectDir, ".git", "HEAD"), "ref")
	writeFile(t, filepath.Join(projectDir, "node_modules", "x", "index.js"), "x")
	writeFile(t, filepath.Join(projectDir, "android", "build.gradle"), "{}")

	stager := assets.NewStager(nil)
	// Static tree whose root holds the entry page: build output is the root,
	// so force the fallback path by using an empty output dir.
	layout := detect.Detect(projectDir)
	layout.BuildOutputDir = ""
	require.NoError(t, stager.Stage(layout, projectDir, true))

	webRoot := filepath.Join(projectDir, "web")
	assert.True(t, utils.FileExists(filepath.Join(webRoot, "index.html")))
	assert.True(t, utils.FileExists(filepath.Join(webRoot, "style.css")))
	assert.False(t, utils.Exists(filepath.Join(webRoot, ".git")))
	assert.False(t, utils.Exists(filepath.Join(webRoot, "node_modules")))
	assert.False(t, utils.Exists(filepath.Join(webRoot, "android")))
	assert.False(t, utils.Exists(filepath.Join(webRoot, "web")))
}

func TestStage_SynthesizesRedirect(t *testing.T) {
	projectDir := t.TempDir()
	writeFile(t, filepath.Join(projectDir, "site", "index.html"), "<html></html>")

	layout := detect.Detect(projectDir)
	layout.BuildOutputDir = ""
	stager := assets.NewStager(nil)
	require.NoError(t, stager.Stage(layout, projectDir, true))

	page := readFile(t, filepath.Join(projectDir, "web", "index.html"))
	assert.Contains(t, page, `http-equiv="refresh"`)
	assert.Contains(t, page, "site/index.html")
}

func TestStage_InjectsViewportFitIntoExistingMeta(t *testing.T) {
	projectDir := t.TempDir()
	writeFile(t, filepath.Join(projectDir, "dist", "index.html"),
		`<html><head><meta name="viewport" content="width=device-width, initial-scale=1.0"></head><body></body></html>`)

	layout := detect.Detect(projectDir)
	stager := assets.NewStager(nil)
	require.NoError(t, stager.Stage(layout, projectDir, false))

	page := readFile(t, filepath.Join(projectDir, "web", "index.html"))
	assert.Contains(t, page, "viewport-fit=cover")
	assert.Contains(t, page, "safe-area-inset-top")
	assert.Equal(t, 1, strings.Count(page, "viewport-fit=cover"))
}

func TestStage_InsertsViewportWhenAbsent(t *testing.T) {
	projectDir := t.TempDir()
	writeFile(t, filepath.Join(projectDir, "dist", "index.html"),
		"<html><head><title>x</title></head><body></body></html>")

	layout := detect.Detect(projectDir)
	stager := assets.NewStager(nil)
	require.NoError(t, stager.Stage(layout, projectDir, false))

	page := readFile(t, filepath.Join(projectDir, "web", "index.html"))
	assert.Contains(t, page, `name="viewport"`)
	assert.Contains(t, page, "viewport-fit=cover")
}

func TestStage_FullscreenSkipsInjection(t *testing.T) {
	projectDir := t.TempDir()
	original := "<html><head><title>x</title></head><body></body></html>"
	writeFile(t, filepath.Join(projectDir, "dist", "index.html"), original)

	layout := detect.Detect(projectDir)
	stager := assets.NewStager(nil)
	require.NoError(t, stager.Stage(layout, projectDir, true))

	assert.Equal(t, original, readFile(t, filepath.Join(projectDir, "web", "index.html")))
}

func TestStage_PageWithoutHeadLeftAlone(t *testing.T) {
	projectDir := t.TempDir()
	original := "<html><body>bare</body></html>"
	writeFile(t, filepath.Join(projectDir, "dist", "index.html"), original)

	layout := detect.Detect(projectDir)
	stager := assets.NewStager(nil)
	require.NoError(t, stager.Stage(layout, projectDir, false))

	assert.Equal(t, original, readFile(t, filepath.Join(projectDir, "web", "index.html")))
}

func TestStage_InjectionIsIdempotent(t *testing.T) {
	projectDir := t.TempDir()
	writeFile(t, filepath.Join(projectDir, "dist", "index.html"),
		"<html><head><title>x</title></head><body></body></html>")

	layout := detect.Detect(projectDir)
	stager := assets.NewStager(nil)
	require.NoError(t, stager.Stage(layout, projectDir, false))
	once := readFile(t, filepath.Join(projectDir, "web", "index.html"))

	require.NoError(t, stager.Stage(layout, projectDir, false))
	twice := readFile(t, filepath.Join(projectDir, "web", "index.html"))

	assert.Equal(t, once, twice)
}
