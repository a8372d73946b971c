package entrystore

import "unicode/utf8"

// decodeUTF8 validates raw as UTF-8 text, returning the string form and
// whether it was valid. This is the "decode bytes to text before parsing
// JSON" step spec.md §9 calls out as a known bug class in the source base
// when skipped.
func decodeUTF8(raw []byte) (string, bool) {
	if !utf8.Valid(raw) {
		return "", false
	}
	return string(raw), true
}
