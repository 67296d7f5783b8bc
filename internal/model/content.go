package model

import (
	"path"
	"strings"
)

// Kind is the content type of a ContentUnit.
type Kind string

// Content kinds understood by the detectors.
const (
	KindUnknown    Kind = ""
	KindHTML       Kind = "html"
	KindCSS        Kind = "css"
	KindJS         Kind = "js"
	KindJSX        Kind = "jsx"
	KindTS         Kind = "ts"
	KindPython     Kind = "py"
	KindPHP        Kind = "php"
	KindJSONConfig Kind = "json-config"
	KindEnv        Kind = "env"
	KindConfig     Kind = "config"
	KindText       Kind = "text"
)

// IsScript reports whether the kind is handled by the script detector.
func (k Kind) IsScript() bool {
	return k == KindJS || k == KindJSX || k == KindTS
}

// String returns the kind name.
func (k Kind) String() string {
	if k == KindUnknown {
		return "unknown"
	}
	return string(k)
}

var extensionKinds = map[string]Kind{
	".html":  KindHTML,
	".htm":   KindHTML,
	".jinja": KindHTML,
	".j2":    KindHTML,
	".css":   KindCSS,
	".js":    KindJS,
	".mjs":   KindJS,
	".cjs":   KindJS,
	".jsx":   KindJSX,
	".tsx":   KindJSX,
	".ts":    KindTS,
	".py":    KindPython,
	".php":   KindPHP,
	".yml":   KindConfig,
	".yaml":  KindConfig,
	".toml":  KindConfig,
	".json":  KindConfig,
	".txt":   KindText,
	".md":    KindText,
	".rst":   KindText,
	".ini":   KindText,
	".cfg":   KindText,
	".conf":  KindText,
}

var filenameKinds = map[string]Kind{
	"package.json": KindJSONConfig,
	"angular.json": KindJSONConfig,
	".env":         KindEnv,
}

// KindForPath selects the content kind for a file path from its well-known
// name or its extension. Filenames win over extensions so package.json is
// never treated as generic configuration.
func KindForPath(p string) Kind {
	base := path.Base(strings.ReplaceAll(p, `\`, "/"))
	if kind, ok := filenameKinds[base]; ok {
		return kind
	}
	return extensionKinds[strings.ToLower(path.Ext(base))]
}

// ContentUnit is one piece of analyzable content.
type ContentUnit struct {
	// Content is the text handed to the detector.
	Content string

	// Location identifies the content in reports: a relative path or a URL.
	Location string

	// Kind selects the detector.
	Kind Kind

	// Raw is the enclosing unprocessed document when Content was extracted
	// from it, such as a <style> body taken from a page. Lines reported for
	// the unit are lines of Raw when it is set.
	Raw string
}

// NewContentUnit creates a unit whose kind is derived from the location.
func NewContentUnit(content, location string) ContentUnit {
	return ContentUnit{
		Content:  content,
		Location: location,
		Kind:     KindForPath(location),
	}
}

// IsEmbedded reports whether the unit was extracted from a larger document.
func (u ContentUnit) IsEmbedded() bool {
	return u.Raw != ""
}

// Filename returns the base name of the unit location.
func (u ContentUnit) Filename() string {
	return path.Base(strings.ReplaceAll(u.Location, `\`, "/"))
}
