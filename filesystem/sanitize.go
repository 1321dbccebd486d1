package filesystem

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// Reserved device names on Windows. Files named like this are unusable when
// the tree is later copied to or shared with a Windows machine.
var windowsDeviceNames = map[string]struct{}{
	"CON": {}, "PRN": {}, "AUX": {}, "NUL": {},
	"COM0": {}, "COM1": {}, "COM2": {}, "COM3": {}, "COM4": {},
	"COM5": {}, "COM6": {}, "COM7": {}, "COM8": {}, "COM9": {},
	"LPT0": {}, "LPT1": {}, "LPT2": {}, "LPT3": {}, "LPT4": {},
	"LPT5": {}, "LPT6": {}, "LPT7": {}, "LPT8": {}, "LPT9": {},
}

// SecureFilename maps an arbitrary string to a name that is safe to use as a
// single path component. Accented letters are folded to their ASCII base,
// anything else outside [A-Za-z0-9_.-] is removed, runs of whitespace become
// a single underscore and leading or trailing dots and underscores are
// trimmed. An empty return value means nothing usable was left.
func SecureFilename(name string) string {
	name = norm.NFKD.String(name)

	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if r >= utf8.RuneSelf {
			continue
		}
		// Separators are turned into whitespace so "a/b" keeps a boundary
		// between its halves instead of becoming "ab".
		if r == '/' || r == '\\' {
			r = ' '
		}
		b.WriteRune(r)
	}

	name = strings.Join(strings.Fields(b.String()), "_")
	name = unsafeFilenameChars.ReplaceAllString(name, "")
	name = strings.Trim(name, "._")
	if name == "" {
		return ""
	}
	if _, ok := windowsDeviceNames[strings.ToUpper(strings.SplitN(name, ".", 2)[0])]; ok {
		name = "_" + name
	}
	return name
}

// splitDeclaredPath breaks a client declared relative path into its
// components. Both slash styles are accepted since browsers on Windows may
// report either.
func splitDeclaredPath(p string) []string {
	return strings.FieldsFunc(p, func(r rune) bool {
		return r == '/' || r == '\\'
	})
}

// Destination computes where an uploaded file lands, relative to the root.
// When declared is set its components are kept as a directory chain below
// base, minus any empty, "." or ".." components and minus components that
// sanitize to nothing. If none survive, or declared is empty, the sanitized
// filename is placed directly in base. The second return value is false when
// no usable name could be produced and the item should be skipped.
func Destination(base string, declared string, filename string) (string, bool) {
	var parts []string
	for _, seg := range splitDeclaredPath(declared) {
		if seg == "." || seg == ".." {
			continue
		}
		if s := SecureFilename(seg); s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		name := SecureFilename(filename)
		if name == "" {
			return "", false
		}
		parts = []string{name}
	}
	return joinRel(append([]string{NormalizePath(base)}, parts...)...), true
}
