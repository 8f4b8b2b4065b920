package topic

import (
	"strings"
)

// Topic segments of the presence protocol.
// Changing these values breaks every controller that listens for agents.
const (
	// SuffixAvailable carries the agent's online/offline announcements (Agent -> Controller).
	// Structure: {root}/{host}/available
	SuffixAvailable = "available"

	// SuffixCommand carries display switch commands (Controller -> Agent).
	// Structure: {root}/{host}/command
	SuffixCommand = "command"
)

// Standard MQTT wildcard definitions.
const (
	// Wildcard is the single-level wildcard "+".
	Wildcard = "+"

	// MultiWildcard is the multi-level wildcard "#". It must be the last level of a filter.
	MultiWildcard = "#"
)

// Builder constructs per-host topic strings under a common root.
type Builder struct {
	// root is the base namespace for all topics (e.g., "displays", "cloupeer/office").
	root string
}

// NewBuilder creates a Builder with the specified root namespace.
func NewBuilder(root string) *Builder {
	return &Builder{root: strings.Trim(root, "/")}
}

// Available returns the availability topic of a host.
func (b *Builder) Available(host string) string {
	return b.Build(host, SuffixAvailable)
}

// AvailableWildcard returns the filter a controller uses to follow every agent.
// Result: {root}/+/available
func (b *Builder) AvailableWildcard() string {
	return b.Build(Wildcard, SuffixAvailable)
}

// Command returns the command topic of a host.
func (b *Builder) Command(host string) string {
	return b.Build(host, SuffixCommand)
}

// Build joins the root and the given levels with "/", skipping empty levels.
func (b *Builder) Build(levels ...string) string {
	parts := make([]string, 0, len(levels)+1)
	if b.root != "" {
		parts = append(parts, b.root)
	}
	for _, l := range levels {
		if l = strings.Trim(l, "/"); l != "" {
			parts = append(parts, l)
		}
	}
	return strings.Join(parts, "/")
}

// HostFromAvailable extracts the host of an availability topic built by b.
// It reports false for topics of other shapes or roots.
func (b *Builder) HostFromAvailable(topic string) (string, bool) {
	rest := topic
	if b.root != "" {
		var ok bool
		if rest, ok = strings.CutPrefix(topic, b.root+"/"); !ok {
			return "", false
		}
	}

	host, suffix, ok := strings.Cut(rest, "/")
	if !ok || suffix != SuffixAvailable || host == "" || host == Wildcard || host == MultiWildcard {
		return "", false
	}
	return host, true
}
