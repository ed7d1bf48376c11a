// Package pathutil guards object keys and filenames built from user input.
package pathutil

import (
	"path"
	"strings"
	"unicode"
)

// MaxFilenameLen bounds a cleaned filename in bytes.
const MaxFilenameLen = 200

// HasDotSegments reports whether any path segment is "." or "..".
func HasDotSegments(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if seg == "." || seg == ".." {
			return true
		}
	}
	return false
}

// CleanFilename reduces a client-supplied filename to its final element.
// Backslashes count as separators. It reports false for names that are
// empty, dot segments, or contain control characters.
func CleanFilename(name string) (string, bool) {
	name = strings.TrimSpace(strings.ReplaceAll(name, `\`, "/"))
	if name == "" || strings.HasSuffix(name, "/") {
		return "", false
	}
	name = path.Base(name)
	if name == "." || name == ".." || name == "/" {
		return "", false
	}
	if strings.IndexFunc(name, unicode.IsControl) >= 0 {
		return "", false
	}
	if len(name) > MaxFilenameLen {
		name = truncateKeepExt(name, MaxFilenameLen)
	}
	return name, true
}

// truncateKeepExt shortens name to at most n bytes keeping the extension and
// never splitting a UTF-8 sequence.
func truncateKeepExt(name string, n int) string {
	ext := path.Ext(name)
	if len(ext) >= n {
		ext = ""
	}
	stem := name[:len(name)-len(ext)]
	limit := n - len(ext)
	cut := 0
	for i := range stem {
		if i > limit {
			break
		}
		cut = i
	}
	if len(stem) <= limit {
		cut = len(stem)
	}
	return stem[:cut] + ext
}
