// Package codec converts between record files and key/value mappings.
//
// Two file shapes are understood:
//
//   - Pure YAML documents (asset meta files, data-only entries)
//   - Front-matter documents: a YAML block fenced by "---" lines (or a TOML
//     block fenced by "+++" lines) followed by a free-form body
//
// When a front-matter document has a non-blank body, Parse stores it under
// the "content" key. DumpWithBody performs the inverse split.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// ContentKey is the mapping key holding a front-matter document's body.
const ContentKey = "content"

// ErrMalformed is returned when a file cannot be parsed into a mapping.
var ErrMalformed = errors.New("malformed document")

// Parse decodes a YAML or front-matter document into a mapping.
// Empty input yields an empty mapping.
func Parse(text []byte) (map[string]any, error) {
	src := strings.ReplaceAll(string(text), "\r\n", "\n")

	if fm, body, ok := splitFrontMatter(src, "---"); ok {
		data, err := parseYAML(fm)
		if err != nil {
			return nil, err
		}
		return withBody(data, body), nil
	}

	if fm, body, ok := splitFrontMatter(src, "+++"); ok {
		data := map[string]any{}
		if _, err := toml.Decode(fm, &data); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return withBody(data, body), nil
	}

	return parseYAML(src)
}

// Dump encodes a mapping as a YAML document.
func Dump(data map[string]any) ([]byte, error) {
	if len(data) == 0 {
		return []byte{}, nil
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(data); err != nil {
		return nil, fmt.Errorf("failed to encode yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode yaml: %w", err)
	}
	return buf.Bytes(), nil
}

// DumpWithBody encodes data as YAML front matter followed by body.
func DumpWithBody(data map[string]any, body string) ([]byte, error) {
	fm, err := Dump(data)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(fm)
	buf.WriteString("---\n")
	buf.WriteString(body)
	return buf.Bytes(), nil
}

func parseYAML(src string) (map[string]any, error) {
	data := map[string]any{}
	if strings.TrimSpace(src) == "" {
		return data, nil
	}
	if err := yaml.Unmarshal([]byte(src), &data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if data == nil {
		data = map[string]any{}
	}
	return data, nil
}

func withBody(data map[string]any, body string) map[string]any {
	body = strings.TrimLeft(body, "\n")
	if strings.TrimSpace(body) != "" {
		data[ContentKey] = body
	}
	return data
}

// splitFrontMatter splits src into the block between two delim lines and
// the text after the closing line. ok is false when src does not open with
// delim or the block is never closed.
func splitFrontMatter(src, delim string) (fm, body string, ok bool) {
	if src != delim && !strings.HasPrefix(src, delim+"\n") {
		return "", "", false
	}
	rest := strings.TrimPrefix(strings.TrimPrefix(src, delim), "\n")

	if rest == delim || strings.HasPrefix(rest, delim+"\n") {
		return "", strings.TrimPrefix(strings.TrimPrefix(rest, delim), "\n"), true
	}

	closing := "\n" + delim
	idx := strings.Index(rest, closing+"\n")
	if idx < 0 {
		if !strings.HasSuffix(rest, closing) {
			return "", "", false
		}
		return rest[:len(rest)-len(closing)], "", true
	}
	return rest[:idx], rest[idx+len(closing)+1:], true
}
