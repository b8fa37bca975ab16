package parser_test

import (
	"archive/zip"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/KaramelBytes/veiltext-cli/internal/parser"
)

func TestParseFileTXT(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "a.txt")
	content := "hello world\nthis is txt"
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	out, err := parser.ParseFile(p)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if out != content {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestParseFileMD(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "a.md")
	content := "# Title\r\n\r\n\r\n\r\nBody here\r\n"
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	out, err := parser.ParseFile(p)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if out != "# Title\n\nBody here\n" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestParseStripsBOM(t *testing.T) {
	out, err := parser.Parse("notes.txt", []byte("\xef\xbb\xbfplain"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if out != "plain" {
		t.Fatalf("unexpected output: %q", out)
	}

	// UTF-16LE with BOM: "hi"
	out, err = parser.Parse("notes.txt", []byte{0xff, 0xfe, 'h', 0, 'i', 0})
	if err != nil {
		t.Fatalf("parse utf16: %v", err)
	}
	if out != "hi" {
		t.Fatalf("unexpected utf16 output: %q", out)
	}
}

func TestParseUnknownExtension(t *testing.T) {
	out, err := parser.Parse("essay.rtf2", []byte("just text"))
	if err != nil || out != "just text" {
		t.Fatalf("got %q, %v", out, err)
	}
	_, err = parser.Parse("blob.bin", []byte{0xff, 0x00, 0xc3})
	if !errors.Is(err, parser.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

func TestParseDOCX(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatal(err)
	}
	doc := `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>
<w:p><w:r><w:t>First</w:t></w:r><w:r><w:t xml:space="preserve"> paragraph &amp; more</w:t></w:r></w:p>
<w:p><w:r><w:t>Second</w:t><w:tab/><w:t>tabbed</w:t></w:r></w:p>
</w:body></w:document>`
	if _, err := w.Write([]byte(doc)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	out, err := parser.Parse("Essay.DOCX", buf.Bytes())
	if err != nil {
		t.Fatalf("parse docx: %v", err)
	}
	want := "First paragraph & more\nSecond\ttabbed"
	if out != want {
		t.Fatalf("got %q want %q", out, want)
	}

	if _, err := parser.Parse("broken.docx", []byte("not a zip")); err == nil {
		t.Fatalf("expected error for invalid docx")
	}
}
