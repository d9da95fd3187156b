package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectContentType(t *testing.T) {
	pdf := []byte("%PDF-1.4\n%âãÏÓ\n1 0 obj\n<<>>\nendobj\n")
	png := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

	tests := []struct {
		name     string
		filename string
		data     []byte
		want     string
	}{
		{name: "plain text", filename: "a.txt", data: []byte("hello"), want: "text/plain; charset=utf-8"},
		{name: "markdown by extension", filename: "README.md", data: []byte("# hi"), want: "text/markdown; charset=utf-8"},
		{name: "extension is case insensitive", filename: "NOTES.MD", data: []byte("some notes"), want: "text/markdown; charset=utf-8"},
		{name: "sniffed pdf ignores misleading extension", filename: "report.txt", data: pdf, want: "application/pdf"},
		{name: "sniffed png", filename: "pic", data: png, want: "image/png"},
		{name: "unknown text without extension", filename: "notes", data: []byte("just words"), want: "text/plain; charset=utf-8"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectContentType(tt.filename, tt.data))
		})
	}
}
