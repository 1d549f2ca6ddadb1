package installs

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// EntryVersion is an on-disk directory name that parses as a semantic
// version, optionally v-prefixed. Ordering ignores the prefix; String
// restores the original form.
type EntryVersion struct {
	version  *semver.Version
	prefixed bool
}

// ParseEntryVersion accepts strict major.minor.patch[-pre] with an optional
// leading v.
func ParseEntryVersion(name string) (EntryVersion, error) {
	prefixed := strings.HasPrefix(name, "v")
	v, err := semver.StrictNewVersion(strings.TrimPrefix(name, "v"))
	if err != nil {
		return EntryVersion{}, fmt.Errorf("%q is not a version entry: %w", name, err)
	}
	return EntryVersion{version: v, prefixed: prefixed}, nil
}

func (e EntryVersion) String() string {
	if e.prefixed {
		return "v" + e.version.String()
	}
	return e.version.String()
}

// Compare orders by the semantic version, ignoring the v prefix.
func (e EntryVersion) Compare(other EntryVersion) int {
	return e.version.Compare(other.version)
}

func (e EntryVersion) LessThan(other EntryVersion) bool {
	return e.Compare(other) < 0
}

func (e EntryVersion) GreaterThan(other EntryVersion) bool {
	return e.Compare(other) > 0
}
