// Package sniff infers a file's true content type from its bytes and decides
// whether a caller-declared MIME type is an acceptable description of it.
// Filenames and extensions are never consulted.
package sniff

import (
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// OctetStream is the generic fallback type: it declares nothing about the
// content and is therefore compatible with every sniff result.
const OctetStream = "application/octet-stream"

// Detect returns the MIME type inferred from the byte content alone,
// normalized to lowercase without parameters.
func Detect(data []byte) string {
	return normalize(mimetype.Detect(data).String())
}

// Table maps a declared MIME type to additional sniffed types it accepts
// beyond the built-in hierarchy rule. It exists so alias pairs such as
// image/jpg -> image/jpeg can be extended through configuration without
// code changes.
type Table map[string][]string

// DefaultTable returns the compatibility aliases accepted out of the box.
func DefaultTable() Table {
	return Table{
		"image/jpg":              {"image/jpeg"},
		"text/xml":               {"application/xml"},
		"application/xml":        {"text/xml"},
		"text/javascript":        {"application/javascript"},
		"application/javascript": {"text/javascript"},
		"audio/mp3":              {"audio/mpeg"},
	}
}

// Validate sniffs data and checks the declared MIME type against the result.
// It returns the sniffed type, an optional informational warning, and whether
// the declaration is compatible.
//
// A declaration is compatible when it equals the sniffed type, is listed as
// an alias for it in the table, or is an ancestor of the sniffed type in the
// detection hierarchy. The hierarchy is rooted at application/octet-stream
// and textual formats descend from text/plain, so text/plain accepts any
// printable-text sniff and application/octet-stream accepts everything.
// Generic declarations matched through the hierarchy produce a warning naming
// the more specific sniffed type.
func (t Table) Validate(data []byte, declared string) (sniffed string, warning string, ok bool) {
	mt := mimetype.Detect(data)
	sniffed = normalize(mt.String())
	decl := normalize(declared)

	if decl == "" || decl == OctetStream {
		if sniffed != OctetStream {
			warning = fmt.Sprintf("declared %s but content sniffs as %s", OctetStream, sniffed)
		}
		return sniffed, warning, true
	}

	if t.accepts(decl, sniffed) {
		return sniffed, "", true
	}

	for parent := mt.Parent(); parent != nil; parent = parent.Parent() {
		if t.accepts(decl, normalize(parent.String())) {
			return sniffed, fmt.Sprintf("declared %s; content sniffs as the more specific %s", decl, sniffed), true
		}
	}

	return sniffed, "", false
}

// accepts reports whether the declared type matches the candidate directly or
// through the alias table.
func (t Table) accepts(declared, candidate string) bool {
	if declared == candidate {
		return true
	}
	for _, alias := range t[declared] {
		if normalize(alias) == candidate {
			return true
		}
	}
	return false
}

// normalize lowercases a MIME type and strips any parameters, e.g.
// "Text/Plain; charset=utf-8" -> "text/plain".
func normalize(mime string) string {
	if idx := strings.IndexByte(mime, ';'); idx != -1 {
		mime = mime[:idx]
	}
	return strings.ToLower(strings.TrimSpace(mime))
}
