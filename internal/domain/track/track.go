// Package track provides the Track domain entity and sound-library resolution.
package track

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Track represents a playable announcement resolved from the sound directory.
// A track has no identity beyond its resolved path.
type Track struct {
	Code  int    // Numeric 4-digit code parsed from the filename prefix
	Path  string // Absolute (or library-relative) file path
	Title string // Optional title from a "NNNN-Title" filename, may be empty
}

// Name returns the filename without directory or extension, the form used for
// status display.
func (t Track) Name() string {
	base := filepath.Base(t.Path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// FormatCode renders a numeric code in the 4-digit wire form, e.g. 17 -> "0017".
func FormatCode(code int) string {
	s := strconv.Itoa(code)
	for len(s) < 4 {
		s = "0" + s
	}
	return s
}

// stripZeros removes leading zeros but keeps a lone "0".
func stripZeros(s string) string {
	trimmed := strings.TrimLeft(s, "0")
	if trimmed == "" {
		return "0"
	}
	return trimmed
}

// MatchCodeFile reports whether filename resolves the given code string.
// Matching is case-insensitive, tolerant of leading zeros on either side, and
// accepts a "-Title" suffix after the code. A leading "P" on the code string
// is ignored.
func MatchCodeFile(filename, code, ext string) bool {
	ext = strings.ToLower(ext)
	name := strings.ToLower(filename)
	if !strings.HasSuffix(name, ext) {
		return false
	}
	base := strings.TrimSuffix(name, ext)

	code = strings.TrimPrefix(strings.TrimPrefix(code, "P"), "p")
	withZeros := strings.ToLower(code)
	withoutZeros := stripZeros(withZeros)
	baseWithoutZeros := stripZeros(base)

	return base == withZeros ||
		base == withoutZeros ||
		baseWithoutZeros == withoutZeros ||
		strings.HasPrefix(base, withZeros+"-") ||
		strings.HasPrefix(base, withoutZeros+"-")
}

// parseName extracts the numeric code and optional title from a filename.
func parseName(filename, ext string) (code int, title string, ok bool) {
	base := strings.TrimSuffix(filename, ext)
	numPart := base
	if i := strings.Index(base, "-"); i >= 0 {
		numPart = base[:i]
		title = base[i+1:]
	}
	n, err := strconv.Atoi(numPart)
	if err != nil {
		return 0, "", false
	}
	return n, title, true
}

// Library resolves codes against a sound directory. The directory is
// re-listed on every call so files added or removed at runtime are picked up
// without a restart.
type Library struct {
	Dir string
	Ext string
}

// NewLibrary creates a Library over dir with the given file extension
// (including the dot).
func NewLibrary(dir, ext string) *Library {
	return &Library{Dir: dir, Ext: ext}
}

// list returns the current directory entries. A read failure yields an empty
// listing; the caller treats it the same as "no matching file".
func (l *Library) list() []string {
	entries, err := os.ReadDir(l.Dir)
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	return names
}

// Resolve returns the first track matching the code string.
func (l *Library) Resolve(code string) (Track, bool) {
	names := l.list()
	sort.Strings(names)
	for _, name := range names {
		if MatchCodeFile(name, code, l.Ext) {
			n, title, _ := parseName(name, l.Ext)
			return Track{Code: n, Path: filepath.Join(l.Dir, name), Title: title}, true
		}
	}
	return Track{}, false
}

// ResolveFile returns a track for a literal filename inside the library.
func (l *Library) ResolveFile(filename string) (Track, bool) {
	path := filepath.Join(l.Dir, filename)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return Track{}, false
	}
	n, title, _ := parseName(filename, filepath.Ext(filename))
	return Track{Code: n, Path: path, Title: title}, true
}

// InRange returns the candidate tracks whose code lies in (base, end],
// ordered by code. At most one file per code is returned (the
// lexicographically first match, mirroring directory resolution order).
func (l *Library) InRange(base, end int) []Track {
	names := l.list()
	sort.Strings(names)
	var out []Track
	for code := base + 1; code <= end; code++ {
		want := FormatCode(code)
		for _, name := range names {
			if MatchCodeFile(name, want, l.Ext) {
				_, title, _ := parseName(name, l.Ext)
				out = append(out, Track{Code: code, Path: filepath.Join(l.Dir, name), Title: title})
				break
			}
		}
	}
	return out
}
