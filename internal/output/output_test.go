package output

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriter_StatusLines(t *testing.T) {
	tests := []struct {
		name  string
		write func(w *Writer)
		want  string
	}{
		{"success", func(w *Writer) { w.Success("Index cleared") }, "✓ Index cleared\n"},
		{"warning", func(w *Writer) { w.Warningf("%d files failed", 2) }, "! 2 files failed\n"},
		{"error", func(w *Writer) { w.Errorf("cannot open %s", "a.pdf") }, "✗ cannot open a.pdf\n"},
		{"indented", func(w *Writer) { w.Status("", "detail") }, "   detail\n"},
		{"header", func(w *Writer) { w.Header("Index") }, "Index\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Given: a plain writer
			buf := &bytes.Buffer{}
			w := newWriter(buf, false, false)

			// When: writing
			tt.write(w)

			// Then: exact plain text
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestWriter_KeyValueAligns(t *testing.T) {
	buf := &bytes.Buffer{}
	w := newWriter(buf, false, false)

	w.KeyValue("State", "READY")
	w.KeyValue("Total chunks", 42)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, strings.Index(lines[0], "READY"), strings.Index(lines[1], "42"))
}

func TestWriter_Code(t *testing.T) {
	buf := &bytes.Buffer{}
	newWriter(buf, false, false).Code("a: 1\nb: 2\n")

	assert.Equal(t, "\n  a: 1\n  b: 2\n\n", buf.String())
}

func TestNew_BufferIsNotStyled(t *testing.T) {
	// Given: a writer over a buffer, which is never a terminal
	buf := &bytes.Buffer{}
	w := New(buf)

	// Then: no colour is applied
	assert.False(t, w.Color())
	w.Success("done")
	assert.NotContains(t, buf.String(), "\x1b[")
}

func TestIsTTY(t *testing.T) {
	assert.False(t, IsTTY(&bytes.Buffer{}))
	assert.False(t, IsTTY(nil))

	f, err := os.CreateTemp(t.TempDir(), "out")
	require.NoError(t, err)
	defer f.Close()
	assert.False(t, IsTTY(f))
}

func TestDetectNoColor(t *testing.T) {
	t.Setenv("NO_COLOR", "")
	assert.True(t, DetectNoColor(), "presence alone disables colour")

	require.NoError(t, os.Unsetenv("NO_COLOR"))
	assert.False(t, DetectNoColor())
}

func TestDetectCI(t *testing.T) {
	for _, v := range []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "BUILDKITE"} {
		t.Setenv(v, "")
		require.NoError(t, os.Unsetenv(v))
	}
	assert.False(t, DetectCI())

	t.Setenv("CI", "true")
	assert.True(t, DetectCI())
}

func TestGetStyles(t *testing.T) {
	plain := GetStyles(false)
	assert.Equal(t, "text", plain.Error.Render("text"))
	assert.Equal(t, "text", plain.Header.Render("text"))
}
