package detect

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/nao1215/siteaudit/internal/locate"
	"github.com/nao1215/siteaudit/internal/model"
)

// pinnedVersion matches an exact version with an optional comparison operator.
var pinnedVersion = regexp.MustCompile(`^[<>=~]?\d+\.\d+\.\d+$`)

// JSONConfigDetector dispatches well-known JSON files to their detector.
type JSONConfigDetector struct {
	manifest *ManifestDetector
	angular  *AngularDetector
}

// NewJSONConfigDetector creates a JSONConfigDetector.
func NewJSONConfigDetector() *JSONConfigDetector {
	return &JSONConfigDetector{
		manifest: NewManifestDetector(),
		angular:  NewAngularDetector(),
	}
}

// Name returns "json-config".
func (d *JSONConfigDetector) Name() string {
	return "json-config"
}

// Kinds returns the json-config kind.
func (d *JSONConfigDetector) Kinds() []model.Kind {
	return []model.Kind{model.KindJSONConfig}
}

// Detect routes package.json and angular.json.
func (d *JSONConfigDetector) Detect(in *Input) []model.Issue {
	switch in.Unit.Filename() {
	case "package.json":
		return d.manifest.Detect(in)
	case "angular.json":
		return d.angular.Detect(in)
	default:
		return nil
	}
}

// ManifestDetector checks the dependencies of a package.json.
type ManifestDetector struct{}

// NewManifestDetector creates a ManifestDetector.
func NewManifestDetector() *ManifestDetector {
	return &ManifestDetector{}
}

// Detect reports early pinned versions and deprecated packages, in file order.
func (d *ManifestDetector) Detect(in *Input) []model.Issue {
	c := newCollector(in.Unit)
	content := in.Unit.Content

	if line, msg, ok := jsonSyntaxError(content); ok {
		c.add("PKG_PARSE_ERROR", "package.json parse error: "+msg, c.atLine(line))
		return c.issues
	}

	deps, err := manifestDependencies(content)
	if err != nil {
		c.add("PKG_PARSE_ERROR", "package.json parse error: "+err.Error())
		return c.issues
	}

	for _, dep := range deps {
		opts := []model.IssueOption{
			c.atLine(dep.line),
			model.WithContext(fmt.Sprintf("%q: %q", dep.name, dep.version)),
		}
		if isOldVersion(dep.version) {
			c.add("PKG_OLD_DEP", fmt.Sprintf("%s version %s may be outdated", dep.name, dep.version), opts...)
		}
		if strings.Contains(strings.ToLower(dep.name), "deprecated") {
			c.add("PKG_DEPRECATED_DEP", dep.name+" is deprecated", opts...)
		}
	}
	return c.issues
}

// isOldVersion reports whether an exactly pinned version is 0.x, 1.0.x or 2.0.x.
func isOldVersion(version string) bool {
	if !pinnedVersion.MatchString(version) {
		return false
	}
	v, err := semver.NewVersion(strings.TrimLeft(version, "<>=~"))
	if err != nil {
		return false
	}
	switch v.Major() {
	case 0:
		return true
	case 1, 2:
		return v.Minor() == 0
	default:
		return false
	}
}

type dependency struct {
	name    string
	version string
	line    int
}

var dependencySections = map[string]bool{
	"dependencies":    true,
	"devDependencies": true,
}

// manifestDependencies returns the dependencies and devDependencies of a
// valid package.json in file order.
func manifestDependencies(content string) ([]dependency, error) {
	dec := json.NewDecoder(strings.NewReader(content))
	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}

	var deps []dependency
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, _ := tok.(string)
		keyEnd := int(dec.InputOffset())

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, err
		}
		if !dependencySections[key] || !bytes.HasPrefix(raw, []byte("{")) {
			continue
		}
		start := keyEnd + strings.Index(content[keyEnd:], string(raw))
		section, err := sectionDependencies(content, start, raw)
		if err != nil {
			return nil, err
		}
		deps = append(deps, section...)
	}
	return deps, nil
}

func sectionDependencies(content string, start int, raw json.RawMessage) ([]dependency, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}

	var deps []dependency
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		name, _ := tok.(string)
		nameEnd := start + int(dec.InputOffset())

		var value any
		if err := dec.Decode(&value); err != nil {
			return nil, err
		}
		version, _ := value.(string)
		deps = append(deps, dependency{
			name:    name,
			version: version,
			line:    locate.LineOfOffset(content, nameEnd-1),
		})
	}
	return deps, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}

// jsonSyntaxError validates content and returns the line of the first syntax error.
func jsonSyntaxError(content string) (int, string, bool) {
	var v any
	err := json.Unmarshal([]byte(content), &v)
	if err == nil {
		return model.LineUnknown, "", false
	}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		offset := int(syntaxErr.Offset)
		if offset > 0 {
			offset--
		}
		return locate.LineOfOffset(content, offset), err.Error(), true
	}
	return model.LineUnknown, err.Error(), true
}

// AngularDetector checks angular.json build settings.
type AngularDetector struct{}

// NewAngularDetector creates an AngularDetector.
func NewAngularDetector() *AngularDetector {
	return &AngularDetector{}
}

type angularWorkspace struct {
	Projects map[string]struct {
		Architect map[string]struct {
			Optimization json.RawMessage `json:"optimization"`
			Options      struct {
				Optimization json.RawMessage `json:"optimization"`
			} `json:"options"`
		} `json:"architect"`
	} `json:"projects"`
}

// Detect reports projects whose build disables optimization, sorted by name.
func (d *AngularDetector) Detect(in *Input) []model.Issue {
	c := newCollector(in.Unit)
	content := in.Unit.Content

	var ws angularWorkspace
	if err := json.Unmarshal([]byte(content), &ws); err != nil {
		line := model.LineUnknown
		if l, _, ok := jsonSyntaxError(content); ok {
			line = l
		}
		c.add("ANGULAR_JSON_ERROR", "angular.json parse error: "+err.Error(), c.atLine(line))
		return c.issues
	}

	names := make([]string, 0, len(ws.Projects))
	for name := range ws.Projects {
		names = append(names, name)
	}
	sort.Strings(names)
	keyLines := projectKeyLines(content)

	for _, name := range names {
		build, ok := ws.Projects[name].Architect["build"]
		if !ok {
			continue
		}
		if isJSONFalse(build.Optimization) || isJSONFalse(build.Options.Optimization) {
			c.add("ANGULAR_NO_OPTIMIZATION", fmt.Sprintf("Angular project %s has optimization disabled", name),
				c.atLine(keyLines[name]))
		}
	}
	return c.issues
}

// projectKeyLines returns the line of every key of the top-level
// "projects" object. The same name elsewhere, such as a defaultProject
// value, is not a project key.
func projectKeyLines(content string) map[string]int {
	lines := make(map[string]int)
	dec := json.NewDecoder(strings.NewReader(content))
	if err := expectDelim(dec, '{'); err != nil {
		return lines
	}
	for dec.More() {
		key, err := dec.Token()
		if err != nil {
			return lines
		}
		if key != "projects" {
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return lines
			}
			continue
		}

		if err := expectDelim(dec, '{'); err != nil {
			return lines
		}
		for dec.More() {
			tok, err := dec.Token()
			if err != nil {
				return lines
			}
			if name, ok := tok.(string); ok {
				// The offset is just past the key's closing quote.
				lines[name] = locate.LineOfOffset(content, int(dec.InputOffset())-1)
			}
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return lines
			}
		}
		return lines
	}
	return lines
}

func isJSONFalse(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "false"
}
