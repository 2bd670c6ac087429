// Package pathutil provides a full-extension helper: ordinary filepath.Ext
// treats only the last dot as significant, but save files carry compound
// extensions like "state.auto" that this system needs to preserve whole.
package pathutil

import (
	"path/filepath"
	"strings"
)

// FullExtension returns everything after the first "." that appears after
// the first character of the basename. A leading dot (dotfiles) does not
// count as starting an extension. Returns "" if there is no such dot.
//
//	FullExtension("rom.state.auto") == "state.auto"
//	FullExtension("rom.sav")        == "sav"
//	FullExtension(".gitignore")     == ""
//	FullExtension("rom")            == ""
func FullExtension(path string) string {
	base := filepath.Base(path)
	if len(base) < 2 {
		return ""
	}
	idx := strings.IndexByte(base[1:], '.')
	if idx < 0 {
		return ""
	}
	return base[idx+2:]
}

// RemoveFullExtension strips the suffix FullExtension would return,
// including its separating dot. It is a left inverse of re-appending the
// extension: RemoveFullExtension(p) + "." + FullExtension(p) reconstructs
// p whenever FullExtension(p) != "".
func RemoveFullExtension(path string) string {
	ext := FullExtension(path)
	if ext == "" {
		return path
	}
	return strings.TrimSuffix(path, "."+ext)
}
