package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test Plan for manifests:
// - The positional form splits IR documents and per-version file groups on "::"
// - A trailing "::" is accepted
// - Missing groups or IR documents are input errors
// - YAML manifests resolve relative paths against their own directory
// - Check reports inaccessible paths

func TestParseArgs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		args    []string
		want    *Manifest
		wantErr error
	}{
		{
			name: "two versions",
			args: []string{"v1.ll", "v2.ll", "::", "a.c", "b.c", "::", "a.c"},
			want: &Manifest{Versions: []VersionInput{
				{IR: "v1.ll", Files: []string{"a.c", "b.c"}},
				{IR: "v2.ll", Files: []string{"a.c"}},
			}},
		},
		{
			name: "trailing demarcation",
			args: []string{"v1.ll", "::", "a.c", "::"},
			want: &Manifest{Versions: []VersionInput{{IR: "v1.ll", Files: []string{"a.c"}}}},
		},
		{
			name: "empty file group",
			args: []string{"v1.ll", "v2.ll", "::", "::", "a.c"},
			want: &Manifest{Versions: []VersionInput{
				{IR: "v1.ll", Files: []string{}},
				{IR: "v2.ll", Files: []string{"a.c"}},
			}},
		},
		{name: "nothing", args: nil, wantErr: ErrNoVersions},
		{name: "no IR", args: []string{"::", "a.c"}, wantErr: ErrNoVersions},
		{name: "no files", args: []string{"v1.ll", "v2.ll"}, wantErr: ErrInputMismatch},
		{name: "too few groups", args: []string{"v1.ll", "v2.ll", "::", "a.c"}, wantErr: ErrInputMismatch},
		{name: "too many groups", args: []string{"v1.ll", "::", "a.c", "::", "b.c"}, wantErr: ErrInputMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseArgs(tt.args)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadManifest(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "run.yaml")
	content := `
versions:
  - ir: ir/v1.yaml
    files: [src/v1/main.c]
  - ir: /abs/v2.yaml
    files: [src/v2/main.c]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	m, err := LoadManifest(path)
	require.NoError(t, err)
	require.Len(t, m.Versions, 2)
	assert.Equal(t, filepath.Join(dir, "ir/v1.yaml"), m.Versions[0].IR)
	assert.Equal(t, []string{filepath.Join(dir, "src/v1/main.c")}, m.Versions[0].Files)
	assert.Equal(t, "/abs/v2.yaml", m.Versions[1].IR)

	err = m.Check()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "v1.yaml not accessible")

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("versions: []\n"), 0644))
	_, err = LoadManifest(empty)
	assert.ErrorIs(t, err, ErrNoVersions)

	_, err = LoadManifest(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
