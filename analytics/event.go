package analytics

// Event is a single analytics fact with its vendor-facing display name and
// event-specific properties.
type Event struct {
	Name       string
	Properties map[string]any
}

func LauncherOpen(version string) Event {
	return Event{Name: "Launcher Open", Properties: map[string]any{"version": version}}
}

func LauncherClose(version string) Event {
	return Event{Name: "Launcher Close", Properties: map[string]any{"version": version}}
}

func DownloadVersion(version string) Event {
	return Event{Name: "Download Version", Properties: map[string]any{"version": version}}
}

func DownloadVersionSuccess(version string) Event {
	return Event{Name: "Download Version Success", Properties: map[string]any{"version": version}}
}

func DownloadVersionError(version, errorMessage string) Event {
	props := map[string]any{"error": errorMessage}
	if version != "" {
		props["version"] = version
	}
	return Event{Name: "Download Version Error", Properties: props}
}

func DownloadVersionCancelled(version string) Event {
	return Event{Name: "Download Version Cancelled", Properties: map[string]any{"version": version}}
}

func DownloadVersionProgress(url string, downloaded, remaining int64) Event {
	return Event{Name: "Download Version Progress", Properties: map[string]any{
		"downloadedFileUrl": url,
		"sizeDownloaded":    downloaded,
		"sizeRemaining":     remaining,
	}}
}

func InstallVersionStart(version string) Event {
	return Event{Name: "Install Version Start", Properties: map[string]any{"version": version}}
}

func InstallVersionSuccess(version string) Event {
	return Event{Name: "Install Version Success", Properties: map[string]any{"version": version}}
}

func InstallVersionError(version, errorMessage string) Event {
	props := map[string]any{"error": errorMessage}
	if version != "" {
		props["version"] = version
	}
	return Event{Name: "Install Version Error", Properties: props}
}

func LaunchClientStart(version string) Event {
	return Event{Name: "Launch Client Start", Properties: map[string]any{"version": version}}
}

func LaunchClientSuccess(version string) Event {
	return Event{Name: "Launch Client Success", Properties: map[string]any{"version": version}}
}

func LaunchClientError(version, errorMessage string) Event {
	return Event{Name: "Launch Client Error", Properties: map[string]any{
		"version": version,
		"error":   errorMessage,
	}}
}
