// Package persona holds the persona model, its store, and tag matching.
package persona

import (
	"strings"
	"time"
)

// Tag is a prefix/suffix pair that selects a persona when it bounds message text.
type Tag struct {
	Prefix string
	Suffix string
}

// IsZero reports whether both prefix and suffix are empty. Zero tags never match.
func (t Tag) IsZero() bool {
	return t.Prefix == "" && t.Suffix == ""
}

// Bounds reports whether content starts with the prefix and ends with the suffix.
// An empty prefix or suffix bounds everything on its side.
func (t Tag) Bounds(content string) bool {
	return strings.HasPrefix(content, t.Prefix) && strings.HasSuffix(content, t.Suffix)
}

// Strip removes one leading prefix and one trailing suffix, tolerating the
// absence of either.
func (t Tag) Strip(content string) string {
	if t.Prefix != "" {
		content = strings.TrimPrefix(content, t.Prefix)
	}
	if t.Suffix != "" {
		content = strings.TrimSuffix(content, t.Suffix)
	}
	return content
}

// Persona is a named alternate identity owned by a single account.
type Persona struct {
	OwnerID     string
	Name        string
	DisplayName string
	AvatarURL   string
	Bio         string
	Pronouns    string
	Public      bool
	Pinned      bool
	Tag         Tag
	CreatedAt   time.Time
}

// RelayName is the username a relayed message carries: the display name when
// set, else the persona name, followed by the collective tag when present.
func (p Persona) RelayName(collectiveTag string) string {
	name := p.Name
	if p.DisplayName != "" {
		name = p.DisplayName
	}
	if collectiveTag == "" {
		return name
	}
	return name + " " + collectiveTag
}
