// Package protocol parses deep links addressed to the launcher through its
// registered URL scheme.
package protocol

import (
	"net/url"
	"strings"
)

// Prefix is the URL scheme the OS routes to this application.
const Prefix = "decentraland://"

// DeepLink is a URL carrying a target destination and optional flags.
type DeepLink struct {
	Original string
	Args     url.Values
}

// Parse returns the deep link for value, or ok=false when value does not
// start with the registered scheme.
func Parse(value string) (link DeepLink, ok bool) {
	if !strings.HasPrefix(value, Prefix) {
		return DeepLink{}, false
	}
	link = DeepLink{Original: value, Args: url.Values{}}
	if _, query, found := strings.Cut(value, "?"); found {
		if args, err := url.ParseQuery(query); err == nil {
			link.Args = args
		}
	}
	return link, true
}

// FromArgs returns the first argument that parses as a deep link.
func FromArgs(args []string) (link DeepLink, ok bool) {
	for _, arg := range args {
		if link, ok = Parse(arg); ok {
			return link, true
		}
	}
	return DeepLink{}, false
}

// HasTrueValue reports whether the named query argument is literally "true".
func (d DeepLink) HasTrueValue(key string) bool {
	return d.Args.Get(key) == "true"
}

func (d DeepLink) String() string {
	return d.Original
}
