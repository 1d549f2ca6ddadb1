// Package installs manages the on-disk client version tree: which versions
// are installed, which one is active, installing a downloaded archive, and
// pruning old versions.
package installs

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

const (
	// AppName is the fixed directory name under the platform local-data dir.
	AppName = "DecentralandLauncherLight"

	downloadedFilename = "decentraland.zip"
)

// Paths locates every file the launcher persists.
type Paths struct {
	root string
}

// DefaultPaths roots the tree at the platform local-data directory.
func DefaultPaths() (*Paths, error) {
	base, err := localDataDir()
	if err != nil {
		return nil, fmt.Errorf("cannot resolve local data directory: %w", err)
	}
	return NewPaths(filepath.Join(base, AppName)), nil
}

// NewPaths roots the tree at an explicit directory.
func NewPaths(root string) *Paths {
	return &Paths{root: root}
}

func (p *Paths) Root() string {
	return p.root
}

// EnsureRoot creates the tree root.
func (p *Paths) EnsureRoot() error {
	return os.MkdirAll(p.root, 0o755)
}

// VersionDir is where one installed version lives.
func (p *Paths) VersionDir(version string) string {
	return filepath.Join(p.root, version)
}

// DevDir is reserved for a development build, exempt from retention.
func (p *Paths) DevDir() string {
	return filepath.Join(p.root, "dev")
}

// DownloadsDir is the staging area for in-flight archives. It is created on
// first use.
func (p *Paths) DownloadsDir() (string, error) {
	dir := filepath.Join(p.root, "downloads")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("cannot create downloads directory: %w", err)
	}
	return dir, nil
}

// TargetDownloadPath is where the release archive is staged.
func (p *Paths) TargetDownloadPath() (string, error) {
	dir, err := p.DownloadsDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, downloadedFilename), nil
}

func (p *Paths) VersionFile() string {
	return filepath.Join(p.root, "version.json")
}

func (p *Paths) ConfigFile() string {
	return filepath.Join(p.root, "config.json")
}

func (p *Paths) AnalyticsQueueDB() string {
	return filepath.Join(p.root, "analytics_queue.db")
}

func (p *Paths) RunningInstancesFile() string {
	return filepath.Join(p.root, "running-instances.json")
}

func (p *Paths) DeeplinkBridgeFile() string {
	return filepath.Join(p.root, "deeplink-bridge.json")
}

// LogFile is the launcher's own log sink. macOS keeps logs under
// ~/Library/Logs; everything else logs next to the data tree.
func (p *Paths) LogFile() (string, error) {
	var dir string
	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(home, "Library", "Logs", AppName)
	default:
		dir = p.root
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("cannot create log directory: %w", err)
	}
	return filepath.Join(dir, "output.log"), nil
}

func localDataDir() (string, error) {
	switch runtime.GOOS {
	case "windows":
		if dir := os.Getenv("LOCALAPPDATA"); dir != "" {
			return dir, nil
		}
		return "", fmt.Errorf("LOCALAPPDATA is not set")
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "Library", "Application Support"), nil
	default:
		if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
			return dir, nil
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".local", "share"), nil
	}
}
