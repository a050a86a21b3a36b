package persona

import "strings"

// selectorMarker splits a user-supplied selector into prefix and suffix,
// e.g. "[text]" reads as prefix "[" and suffix "]".
const selectorMarker = "text"

// ParseSelector splits a selector string on the "text" marker. A selector
// without the marker is treated as a prefix unless it starts with the marker,
// in which case the remainder is the suffix.
func ParseSelector(selector string) Tag {
	if selector == "" {
		return Tag{}
	}

	parts := strings.SplitN(selector, selectorMarker, 2)
	if len(parts) == 1 {
		if strings.HasPrefix(selector, selectorMarker) {
			return Tag{Suffix: parts[0]}
		}
		return Tag{Prefix: parts[0]}
	}
	return Tag{Prefix: parts[0], Suffix: parts[1]}
}
