package detect

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/nao1215/siteaudit/internal/model"
)

var (
	envSecretPattern  = regexp.MustCompile(`(?i)(key|token|secret|password|api)[^=]*=`)
	todoPattern       = regexp.MustCompile(`\b(TODO|FIXME)\b`)
	textSecretPattern = regexp.MustCompile(`(?i)\b(password|passwd|secret|api[_-]?key|token)\b\s*[:=]\s*\S+`)
	debugPattern      = regexp.MustCompile(`(?i)\bdebug\b`)
	yamlLinePattern   = regexp.MustCompile(`line (\d+)`)
)

// EnvDetector checks .env files for secret-looking assignments.
type EnvDetector struct{}

// NewEnvDetector creates an EnvDetector.
func NewEnvDetector() *EnvDetector {
	return &EnvDetector{}
}

// Name returns "env".
func (d *EnvDetector) Name() string {
	return "env"
}

// Kinds returns the env kind.
func (d *EnvDetector) Kinds() []model.Kind {
	return []model.Kind{model.KindEnv}
}

// Detect reports every line that assigns a key, token, secret, password or api value.
func (d *EnvDetector) Detect(in *Input) []model.Issue {
	c := newCollector(in.Unit)
	err := eachLine(in.Unit.Content, func(n int, line string) {
		if envSecretPattern.MatchString(line) {
			trimmed := strings.TrimSpace(line)
			c.add("ENV_POTENTIAL_SECRET", "Potential secret: "+trimmed,
				c.atLine(n), model.WithContext(trimmed))
		}
	})
	if err != nil {
		c.add("ENV_PARSE_ERROR", ".env parse error: "+err.Error())
	}
	return c.issues
}

// TextDetector scans plain text line by line for markers, secrets and debug flags.
type TextDetector struct{}

// NewTextDetector creates a TextDetector.
func NewTextDetector() *TextDetector {
	return &TextDetector{}
}

// Name returns "text".
func (d *TextDetector) Name() string {
	return "text"
}

// Kinds returns the text kind.
func (d *TextDetector) Kinds() []model.Kind {
	return []model.Kind{model.KindText}
}

// Detect runs the line rules.
func (d *TextDetector) Detect(in *Input) []model.Issue {
	c := newCollector(in.Unit)
	scanTextLines(c, in.Unit.Content)
	return c.issues
}

// scanTextLines reports every line matching a text rule, with the line as context.
func scanTextLines(c *collector, content string) {
	_ = eachLine(content, func(n int, line string) {
		trimmed := strings.TrimSpace(line)
		if m := todoPattern.FindString(line); m != "" {
			c.add("TEXT_TODO", m+" marker found", c.atLine(n), model.WithContext(trimmed))
		}
		if textSecretPattern.MatchString(line) {
			c.add("TEXT_POTENTIAL_SECRET", "Potential secret assignment", c.atLine(n), model.WithContext(trimmed))
		}
		if debugPattern.MatchString(line) {
			c.add("TEXT_DEBUG", "Debug setting or statement found", c.atLine(n), model.WithContext(trimmed))
		}
	})
}

// eachLine calls fn with every 1-based line number and line text.
func eachLine(content string, fn func(n int, line string)) error {
	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), len(content)+1)
	n := 0
	for scanner.Scan() {
		n++
		fn(n, strings.TrimSuffix(scanner.Text(), "\r"))
	}
	return scanner.Err()
}

// ConfigDetector validates YAML, TOML and JSON files and applies the text rules.
type ConfigDetector struct{}

// NewConfigDetector creates a ConfigDetector.
func NewConfigDetector() *ConfigDetector {
	return &ConfigDetector{}
}

// Name returns "config".
func (d *ConfigDetector) Name() string {
	return "config"
}

// Kinds returns the config kind.
func (d *ConfigDetector) Kinds() []model.Kind {
	return []model.Kind{model.KindConfig}
}

// Detect checks the syntax for the file's format, then scans its lines.
func (d *ConfigDetector) Detect(in *Input) []model.Issue {
	c := newCollector(in.Unit)
	content := in.Unit.Content

	var (
		line = model.LineUnknown
		col  int
		err  error
	)
	switch strings.ToLower(path.Ext(in.Unit.Filename())) {
	case ".yml", ".yaml":
		line, err = checkYAML(content)
	case ".toml":
		line, col, err = checkTOML(content)
	case ".json":
		var failed bool
		var msg string
		if line, msg, failed = jsonSyntaxError(content); failed {
			err = errors.New(msg)
		}
	}
	if err != nil {
		opts := []model.IssueOption{c.atLine(line)}
		if col > 0 {
			opts = append(opts, model.WithColumn(col))
		}
		c.add("CONFIG_PARSE_ERROR", fmt.Sprintf("%s parse error: %v", in.Unit.Filename(), err), opts...)
	}

	scanTextLines(c, content)
	return c.issues
}

// checkYAML decodes every document and returns the error line when known.
func checkYAML(content string) (int, error) {
	dec := yaml.NewDecoder(strings.NewReader(content))
	for {
		var v any
		err := dec.Decode(&v)
		if errors.Is(err, io.EOF) {
			return model.LineUnknown, nil
		}
		if err != nil {
			line := model.LineUnknown
			if m := yamlLinePattern.FindStringSubmatch(err.Error()); m != nil {
				line, _ = strconv.Atoi(m[1])
			}
			return line, err
		}
	}
}

func checkTOML(content string) (int, int, error) {
	var v map[string]any
	err := toml.NewDecoder(strings.NewReader(content)).Decode(&v)
	if err == nil {
		return model.LineUnknown, 0, nil
	}
	var decodeErr *toml.DecodeError
	if errors.As(err, &decodeErr) {
		row, col := decodeErr.Position()
		return row, col, err
	}
	return model.LineUnknown, 0, err
}
