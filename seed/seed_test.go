package seed

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brettbedarf/mimic"
	"github.com/brettbedarf/mimic/memtree"
)

func TestFormatOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path    string
		want    Format
		wantErr bool
	}{
		{"seed.yaml", FormatYAML, false},
		{"SEED.YML", FormatYAML, false},
		{"dir/seed.json", FormatJSON, false},
		{"seed.txt", "", true},
	}
	for _, tt := range tests {
		got, err := FormatOf(tt.path)
		if tt.wantErr {
			assert.Error(t, err, tt.path)
			continue
		}
		require.NoError(t, err, tt.path)
		assert.Equal(t, tt.want, got)
	}
}

func TestParse_YAML(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "logo.bin"), []byte{0xff, 0x00}, 0o600))
	manifest := `
files:
  - path: /index.html
    contents: "<h1>hi</h1>"
    mtime: 2021-02-03T04:05:06Z
  - path: img/logo.bin
    source: logo.bin
  - path: data.bin
    base64: AAEC
  - path: empty.txt
`
	records, err := Parse([]byte(manifest), FormatYAML, dir)
	require.NoError(t, err)
	require.Len(t, records, 4)

	assert.Equal(t, "index.html", records[0].Path, "leading separator is dropped")
	assert.Equal(t, []byte("<h1>hi</h1>"), records[0].Contents)
	assert.True(t, time.Date(2021, 2, 3, 4, 5, 6, 0, time.UTC).Equal(records[0].LastModified))
	assert.Equal(t, []byte{0xff, 0x00}, records[1].Contents)
	assert.True(t, records[1].LastModified.IsZero(), "unset mtime is left for the tree to fill")
	assert.Equal(t, []byte{0, 1, 2}, records[2].Contents)
	assert.Equal(t, []byte{}, records[3].Contents)
}

func TestParse_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		manifest string
		errMsg   string
	}{
		{"missing path", `{"files":[{"contents":"x"}]}`, "missing path"},
		{"two sources", `{"files":[{"path":"a","contents":"x","base64":"AA=="}]}`, "only one of"},
		{"bad base64", `{"files":[{"path":"a","base64":"!!"}]}`, "invalid base64"},
		{"missing source", `{"files":[{"path":"a","source":"nope.txt"}]}`, "failed to read source"},
		{"bad json", `{"files":`, "failed to unmarshal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse([]byte(tt.manifest), FormatJSON, t.TempDir())
			assert.ErrorContains(t, err, tt.errMsg)
		})
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "seed.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"files":[{"path":"a/b.txt","contents":"b"}]}`), 0o600))
	tree := memtree.New("ns", "")

	n, err := Load(tree, path)

	require.NoError(t, err)
	assert.Equal(t, 1, n)
	contents, ok := tree.GetFileContents("a/b.txt")
	require.True(t, ok)
	assert.Equal(t, []byte("b"), contents)
}

func TestLoad_ImmutableTree(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte("files:\n  - path: a\n"), 0o600))

	_, err := Load(memtree.New("ns", "", memtree.WithReadOnly()), path)
	assert.ErrorIs(t, err, mimic.ErrUnsupported)
}

func TestExport_RoundTrip(t *testing.T) {
	t.Parallel()

	mod := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	src := memtree.New("ns", "", memtree.WithFiles([]mimic.FileRecord{
		{Path: "text.txt", Contents: []byte("héllo"), LastModified: mod},
		{Path: "bin/blob", Contents: []byte{0xff, 0xfe}, LastModified: mod},
	}))

	for _, format := range []Format{FormatYAML, FormatJSON} {
		t.Run(string(format), func(t *testing.T) {
			t.Parallel()
			var buf bytes.Buffer
			require.NoError(t, Export(src, "", &buf, format))
			if format == FormatJSON {
				assert.Contains(t, buf.String(), `"base64": "//4="`)
			}

			records, err := Parse(buf.Bytes(), format, "")
			require.NoError(t, err)
			assert.Equal(t, src.Files(""), records)
		})
	}
}

func TestParse_SourceRejectedWithoutBaseDir(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte(`{"files":[{"path":"a","source":"/etc/hostname"}]}`), FormatJSON, "")
	assert.ErrorContains(t, err, "not allowed")
}
