package persona

// MatchTag returns the persona whose tag bounds content, or nil.
//
// Ties between overlapping tags are broken by an explicit comparator rather
// than store iteration order: the longer combined prefix+suffix wins, and
// equal lengths fall back to creation time (oldest first), then name.
// Personas without a tag are never matched.
func MatchTag(personas []Persona, content string) *Persona {
	var best *Persona
	for i := range personas {
		p := &personas[i]
		if p.Tag.IsZero() || !p.Tag.Bounds(content) {
			continue
		}
		if best == nil || tagLess(best, p) {
			best = p
		}
	}
	return best
}

// tagLess reports whether b should be preferred over a.
func tagLess(a, b *Persona) bool {
	al := len(a.Tag.Prefix) + len(a.Tag.Suffix)
	bl := len(b.Tag.Prefix) + len(b.Tag.Suffix)
	if al != bl {
		return bl > al
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return b.CreatedAt.Before(a.CreatedAt)
	}
	return b.Name < a.Name
}
