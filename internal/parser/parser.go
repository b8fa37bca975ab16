package parser

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"unicode/utf8"
)

// Parser turns an uploaded file into document text.
type Parser interface {
	CanParse(filename string) bool
	Parse(content []byte) (string, error)
}

var registry []Parser

// Register adds a parser implementation to the registry.
func Register(p Parser) {
	registry = append(registry, p)
}

// MaxUploadBytes bounds what Parse accepts.
const MaxUploadBytes = 10 << 20

// ErrUnsupported indicates content that is neither a known format nor text.
var ErrUnsupported = errors.New("unsupported document format")

// Parse picks a parser by filename. Unknown extensions are accepted when the
// content decodes as text.
func Parse(name string, data []byte) (string, error) {
	if len(data) > MaxUploadBytes {
		return "", fmt.Errorf("%s: file exceeds %d bytes", filepath.Base(name), MaxUploadBytes)
	}
	for _, p := range registry {
		if p.CanParse(name) {
			return p.Parse(data)
		}
	}
	if !utf8.Valid(data) && !hasUTF16BOM(data) {
		return "", fmt.Errorf("%w: %s", ErrUnsupported, filepath.Base(name))
	}
	return decodeText(data)
}

func hasUTF16BOM(b []byte) bool {
	return len(b) >= 2 && ((b[0] == 0xff && b[1] == 0xfe) || (b[0] == 0xfe && b[1] == 0xff))
}

// ParseFile reads path and parses it.
func ParseFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return Parse(path, data)
}

func init() {
	Register(txtParser{})
	Register(markdownParser{})
	Register(docxParser{})
}
