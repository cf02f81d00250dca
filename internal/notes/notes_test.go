package notes_test

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/csvagent/internal/apperr"
	"github.com/KaramelBytes/csvagent/internal/notes"
)

func write(t *testing.T, name string, content []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, content, 0o644))
	return p
}

func TestLoad_Text(t *testing.T) {
	p := write(t, "dict.txt", []byte("amount: order value in EUR\r\n\r\n\r\n\r\nregion: sales region\n"))
	out, err := notes.Load(p, 0)
	require.NoError(t, err)
	assert.Equal(t, "amount: order value in EUR\n\nregion: sales region", out)
}

func TestLoad_MarkdownFrontMatter(t *testing.T) {
	p := write(t, "dict.md", []byte("---\ntitle: Sales\n---\n# Columns\n\n- amount: EUR\n"))
	out, err := notes.Load(p, 0)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "# Columns"), out)
	assert.NotContains(t, out, "title: Sales")
}

func TestLoad_Docx(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<?xml version="1.0"?><w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		`<w:p><w:r><w:t>amount</w:t></w:r><w:r><w:tab/><w:t>order value</w:t></w:r></w:p>` +
		`<w:p><w:r><w:t>region &amp; city</w:t></w:r></w:p></w:body></w:document>`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	out, err := notes.Load(write(t, "dict.docx", buf.Bytes()), 0)
	require.NoError(t, err)
	assert.Equal(t, "amount\torder value\nregion & city", out)

	_, err = notes.Load(write(t, "bad.docx", []byte("not a zip")), 0)
	assert.ErrorIs(t, err, apperr.ErrUnsupportedFormat)
}

func TestLoad_FallbackAndErrors(t *testing.T) {
	out, err := notes.Load(write(t, "README", []byte("plain notes")), 0)
	require.NoError(t, err)
	assert.Equal(t, "plain notes", out)

	_, err = notes.Load(write(t, "blob.bin", []byte{0xff, 0xfe, 0x00}), 0)
	assert.ErrorIs(t, err, apperr.ErrUnsupportedFormat)

	_, err = notes.Load(filepath.Join(t.TempDir(), "missing.txt"), 0)
	assert.ErrorIs(t, err, apperr.ErrFileNotFound)
}

func TestLoad_Truncates(t *testing.T) {
	p := write(t, "long.txt", []byte(strings.Repeat("word ", 1000)))
	out, err := notes.Load(p, 10)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(out), 40)
	assert.True(t, strings.HasSuffix(out, "..."))
}
