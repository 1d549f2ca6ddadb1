package installs

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"time"

	"github.com/decentraland/launcher/compression"
	"github.com/decentraland/launcher/errs"
)

// retainedBelowCurrent is how many installs at or below the active version
// survive retention, the active one included.
const retainedBelowCurrent = 2

// Platform describes the per-OS shape of an installed version.
type Platform struct {
	// BinRelPath is the launch binary path relative to the version dir.
	BinRelPath string
	// LiftBuildDir moves a nested build/ directory up one level after
	// extraction.
	LiftBuildDir bool
	// FixPermissions sets the executable bit on the launch binary.
	FixPermissions bool
}

// DefaultPlatform selects the install shape for the running OS.
func DefaultPlatform() Platform {
	switch runtime.GOOS {
	case "windows":
		return Platform{BinRelPath: "Decentraland.exe"}
	default:
		// The macOS archive layout; Linux builds ship the same tree.
		return Platform{
			BinRelPath:     filepath.Join("Decentraland.app", "Contents", "MacOS", "Explorer"),
			LiftBuildDir:   true,
			FixPermissions: true,
		}
	}
}

// Registry owns version.json and the installed-version tree.
type Registry struct {
	log      *slog.Logger
	paths    *Paths
	platform Platform
	now      func() time.Time
}

func NewRegistry(log *slog.Logger, paths *Paths) *Registry {
	return &Registry{
		log:      log,
		paths:    paths,
		platform: DefaultPlatform(),
		now:      time.Now,
	}
}

// SetPlatform overrides the install shape, for tests.
func (r *Registry) SetPlatform(platform Platform) {
	r.platform = platform
}

func (r *Registry) versionData() (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(r.paths.VersionFile())
	if err != nil {
		return nil, fmt.Errorf("failed to read version file: %w", err)
	}
	var content map[string]json.RawMessage
	if err := json.Unmarshal(data, &content); err != nil {
		return nil, fmt.Errorf("failed to parse version file: %w", err)
	}
	return content, nil
}

func (r *Registry) versionDataOrEmpty() map[string]json.RawMessage {
	content, err := r.versionData()
	if err != nil {
		return map[string]json.RawMessage{}
	}
	return content
}

func (r *Registry) stringField(key string) (value string, ok bool) {
	content, err := r.versionData()
	if err != nil {
		return "", false
	}
	raw, found := content[key]
	if !found {
		return "", false
	}
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", false
	}
	return value, true
}

// ActiveVersion is the version the launcher would start.
func (r *Registry) ActiveVersion() (string, bool) {
	return r.stringField("version")
}

// BinPath resolves the launch binary for version; the empty string means
// the active install, "dev" the development build.
func (r *Registry) BinPath(version string) (string, error) {
	var base string
	switch version {
	case "":
		path, ok := r.stringField("path")
		if !ok {
			return "", fmt.Errorf("no active install recorded")
		}
		base = path
	case "dev":
		base = r.paths.DevDir()
	default:
		base = r.paths.VersionDir(version)
	}
	return filepath.Join(base, r.platform.BinRelPath), nil
}

// IsInstalled reports whether the launch binary exists for version (the
// active install when version is empty).
func (r *Registry) IsInstalled(version string) bool {
	path, err := r.BinPath(version)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// IsUpdated reports whether version is both installed and active.
func (r *Registry) IsUpdated(version string) bool {
	if !r.IsInstalled(version) {
		return false
	}
	active, ok := r.ActiveVersion()
	return ok && active == version
}

// Install extracts the downloaded archive into the version directory,
// applies platform post-steps, records the install, removes the archive,
// and prunes old versions.
func (r *Registry) Install(version, archivePath string) error {
	branch := r.paths.VersionDir(version)
	if version == "dev" {
		branch = r.paths.DevDir()
	}

	if _, err := os.Stat(archivePath); err != nil {
		return errs.New(errs.CodeFileNotFound, err, "expected_path", archivePath)
	}

	if err := compression.Decompress(archivePath, branch); err != nil {
		return err
	}

	if r.platform.LiftBuildDir {
		buildDir := filepath.Join(branch, "build")
		if _, err := os.Stat(buildDir); err == nil {
			if err := moveRecursive(buildDir, branch); err != nil {
				return errs.FromIO(fmt.Errorf("cannot move build folder: %w", err))
			}
		}
	}
	if r.platform.FixPermissions {
		binPath := filepath.Join(branch, r.platform.BinRelPath)
		if _, err := os.Stat(binPath); err == nil {
			if err := os.Chmod(binPath, 0o755); err != nil {
				return errs.FromIO(err)
			}
		}
	}

	if err := r.record(version, branch); err != nil {
		return errs.Generic(err)
	}

	if err := os.Remove(archivePath); err != nil {
		return errs.New(errs.CodeFileDeleteFailed, err, "file_path", archivePath)
	}

	if version != "dev" {
		current, err := ParseEntryVersion(version)
		if err == nil {
			if err := r.retention(current); err != nil {
				return errs.Generic(fmt.Errorf("cannot clean up the old versions: %w", err))
			}
		}
	}
	return nil
}

func (r *Registry) record(version, branch string) error {
	content := r.versionDataOrEmpty()

	timestamp := strconv.FormatInt(r.now().Unix(), 10)
	raw, err := json.Marshal(timestamp)
	if err != nil {
		return err
	}
	content[version] = raw

	if version != "dev" {
		versionRaw, err := json.Marshal(version)
		if err != nil {
			return err
		}
		content["version"] = versionRaw
	}
	pathRaw, err := json.Marshal(branch)
	if err != nil {
		return err
	}
	content["path"] = pathRaw

	data, err := json.Marshal(content)
	if err != nil {
		return err
	}
	if err := os.WriteFile(r.paths.VersionFile(), data, 0o644); err != nil {
		return fmt.Errorf("cannot write version data: %w", err)
	}
	return nil
}

// retention removes installs strictly greater than current (a published
// rollback makes them unreachable) and keeps only the newest installs at or
// below current. Non-version directories are never touched.
func (r *Registry) retention(current EntryVersion) error {
	entries, err := os.ReadDir(r.paths.Root())
	if err != nil {
		return err
	}

	var keepable []EntryVersion
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		version, err := ParseEntryVersion(entry.Name())
		if err != nil {
			continue
		}
		if version.GreaterThan(current) {
			r.removeVersionDir(entry.Name())
			continue
		}
		keepable = append(keepable, version)
	}

	sort.Slice(keepable, func(i, j int) bool {
		return keepable[j].LessThan(keepable[i])
	})
	for _, version := range keepable[min(len(keepable), retainedBelowCurrent):] {
		r.removeVersionDir(version.String())
	}
	return nil
}

func (r *Registry) removeVersionDir(name string) {
	path := r.paths.VersionDir(name)
	if err := os.RemoveAll(path); err != nil {
		r.log.Error("failed to remove old version", slog.String("version", name), slog.Any("error", err))
		return
	}
	r.log.Info("removed old version", slog.String("version", name))
}

// moveRecursive merges src into dst, renaming files and descending into
// directories that already exist at the destination.
func moveRecursive(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return os.Rename(src, dst)
	}

	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())
		if entry.IsDir() {
			if err := moveRecursive(srcPath, dstPath); err != nil {
				return err
			}
			continue
		}
		if err := os.Rename(srcPath, dstPath); err != nil {
			return err
		}
	}
	return os.Remove(src)
}
