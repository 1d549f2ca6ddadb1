package installs

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/decentraland/launcher/errs"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// testPlatform mirrors the Unix install shape with a flat binary name so
// fixtures stay small.
var testPlatform = Platform{BinRelPath: "Explorer", LiftBuildDir: true, FixPermissions: true}

func newTestRegistry(t *testing.T) (*Registry, *Paths) {
	t.Helper()
	paths := NewPaths(t.TempDir())
	if err := paths.EnsureRoot(); err != nil {
		t.Fatal(err)
	}
	r := NewRegistry(testLogger(), paths)
	r.SetPlatform(testPlatform)
	r.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return r, paths
}

// writeArchive builds a release zip nesting a tar with build/Explorer.
func writeArchive(t *testing.T, dir string) string {
	t.Helper()
	var tarBuf bytes.Buffer
	tw := tar.NewWriter(&tarBuf)
	if err := tw.WriteHeader(&tar.Header{Name: "build/", Typeflag: tar.TypeDir, Mode: 0o755}); err != nil {
		t.Fatal(err)
	}
	content := "#!/bin/sh\nexit 0\n"
	if err := tw.WriteHeader(&tar.Header{Name: "build/Explorer", Typeflag: tar.TypeReg, Mode: 0o644, Size: int64(len(content))}); err != nil {
		t.Fatal(err)
	}
	if _, err := tw.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}

	var zipBuf bytes.Buffer
	zw := zip.NewWriter(&zipBuf)
	f, err := zw.Create("payload.tar")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Write(tarBuf.Bytes()); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(dir, "decentraland.zip")
	if err := os.WriteFile(path, zipBuf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func installedVersions(t *testing.T, paths *Paths) []string {
	t.Helper()
	entries, err := os.ReadDir(paths.Root())
	if err != nil {
		t.Fatal(err)
	}
	var versions []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := ParseEntryVersion(entry.Name()); err == nil {
			versions = append(versions, entry.Name())
		}
	}
	sort.Strings(versions)
	return versions
}

func TestInstall(t *testing.T) {
	t.Run("records the install and removes the archive", func(t *testing.T) {
		r, paths := newTestRegistry(t)
		downloads, err := paths.DownloadsDir()
		if err != nil {
			t.Fatal(err)
		}
		archive := writeArchive(t, downloads)

		if err := r.Install("v1.2.3", archive); err != nil {
			t.Fatalf("install failed: %v", err)
		}

		if !r.IsInstalled("v1.2.3") {
			t.Error("expected version to be installed")
		}
		if !r.IsUpdated("v1.2.3") {
			t.Error("expected version to be active")
		}
		if _, err := os.Stat(archive); !os.IsNotExist(err) {
			t.Error("expected the staging archive to be removed")
		}

		// The nested build directory is lifted and the binary made
		// executable.
		binPath := filepath.Join(paths.VersionDir("v1.2.3"), "Explorer")
		info, err := os.Stat(binPath)
		if err != nil {
			t.Fatalf("expected launch binary: %v", err)
		}
		if info.Mode().Perm() != 0o755 {
			t.Errorf("expected 0755 binary permissions, got %v", info.Mode().Perm())
		}

		data, err := os.ReadFile(paths.VersionFile())
		if err != nil {
			t.Fatal(err)
		}
		var content map[string]any
		if err := json.Unmarshal(data, &content); err != nil {
			t.Fatal(err)
		}
		if content["version"] != "v1.2.3" {
			t.Errorf("expected active version in registry, got %v", content["version"])
		}
		if content["path"] != paths.VersionDir("v1.2.3") {
			t.Errorf("expected install path in registry, got %v", content["path"])
		}
		if _, ok := content["v1.2.3"]; !ok {
			t.Error("expected an install timestamp entry")
		}
	})
	t.Run("missing archive fails with file not found", func(t *testing.T) {
		r, paths := newTestRegistry(t)
		err := r.Install("v1.2.3", filepath.Join(paths.Root(), "downloads", "missing.zip"))
		var stepErr *errs.StepError
		if !errors.As(err, &stepErr) || stepErr.Code != errs.CodeFileNotFound {
			t.Fatalf("expected file-not-found, got %v", err)
		}
	})
	t.Run("a dev install never becomes the active version", func(t *testing.T) {
		r, paths := newTestRegistry(t)
		downloads, err := paths.DownloadsDir()
		if err != nil {
			t.Fatal(err)
		}
		if err := r.Install("v1.2.3", writeArchive(t, downloads)); err != nil {
			t.Fatal(err)
		}
		if err := r.Install("dev", writeArchive(t, downloads)); err != nil {
			t.Fatal(err)
		}
		active, ok := r.ActiveVersion()
		if !ok || active != "v1.2.3" {
			t.Errorf("expected v1.2.3 to remain active, got %q", active)
		}
	})
}

func TestRetention(t *testing.T) {
	install := func(t *testing.T, r *Registry, paths *Paths, version string) {
		t.Helper()
		downloads, err := paths.DownloadsDir()
		if err != nil {
			t.Fatal(err)
		}
		if err := r.Install(version, writeArchive(t, downloads)); err != nil {
			t.Fatalf("install %s failed: %v", version, err)
		}
	}

	t.Run("keeps the newest two at or below the current version", func(t *testing.T) {
		r, paths := newTestRegistry(t)
		install(t, r, paths, "v1.2.1")
		install(t, r, paths, "v1.2.2")
		install(t, r, paths, "v1.2.4")

		if diff := cmp.Diff([]string{"v1.2.2", "v1.2.4"}, installedVersions(t, paths)); diff != "" {
			t.Error(diff)
		}
	})
	t.Run("a published rollback removes versions above the current one", func(t *testing.T) {
		r, paths := newTestRegistry(t)
		install(t, r, paths, "v1.2.4")
		install(t, r, paths, "v1.3.0")
		install(t, r, paths, "v1.2.5")

		if diff := cmp.Diff([]string{"v1.2.4", "v1.2.5"}, installedVersions(t, paths)); diff != "" {
			t.Error(diff)
		}
		active, _ := r.ActiveVersion()
		if active != "v1.2.5" {
			t.Errorf("expected v1.2.5 active after rollback, got %q", active)
		}
	})
	t.Run("non-version directories are never touched", func(t *testing.T) {
		r, paths := newTestRegistry(t)
		if err := os.MkdirAll(paths.DevDir(), 0o755); err != nil {
			t.Fatal(err)
		}
		install(t, r, paths, "v1.0.0")
		install(t, r, paths, "v1.0.1")
		install(t, r, paths, "v1.0.2")

		if _, err := os.Stat(paths.DevDir()); err != nil {
			t.Error("dev directory was removed by retention")
		}
		if _, err := os.Stat(filepath.Join(paths.Root(), "downloads")); err != nil {
			t.Error("downloads directory was removed by retention")
		}
	})
	t.Run("reinstalling the same version is stable", func(t *testing.T) {
		r, paths := newTestRegistry(t)
		install(t, r, paths, "v1.2.3")
		install(t, r, paths, "v1.2.3")

		if diff := cmp.Diff([]string{"v1.2.3"}, installedVersions(t, paths)); diff != "" {
			t.Error(diff)
		}
		if !r.IsUpdated("v1.2.3") {
			t.Error("expected version to stay active")
		}
	})
}

func TestIsInstalled(t *testing.T) {
	r, paths := newTestRegistry(t)
	if r.IsInstalled("") {
		t.Error("fresh tree must not report an active install")
	}
	if r.IsInstalled("v9.9.9") {
		t.Error("unknown version must not report installed")
	}
	downloads, err := paths.DownloadsDir()
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Install("v1.0.0", writeArchive(t, downloads)); err != nil {
		t.Fatal(err)
	}
	if !r.IsInstalled("") {
		t.Error("expected the active install to be reported")
	}
	if r.IsUpdated("v2.0.0") {
		t.Error("non-active version must not report updated")
	}
}
