package volume

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want Spec
	}{
		{"/a:/b", Spec{HostPath: "/a", ContainerPath: "/b", Valid: true}},
		{"/data/host:/var/lib/app", Spec{HostPath: "/data/host", ContainerPath: "/var/lib/app", Valid: true}},
		{"noseparator", Spec{}},
		{":/b", Spec{}},
		{"/a:", Spec{}},
		{":", Spec{}},
		{"", Spec{}},
		{"/a:/b:/c", Spec{}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Parse(tt.in))
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{"/a:/b", false},
		{"/a:", true},
		{"rel:/b", true},
		{"/a:rel", true},
		{"/a,b:/b", true},
		{"/a:/b/../../etc", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			err := Parse(tt.in).Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalid)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTarget(t *testing.T) {
	root := t.TempDir()
	s := Parse("/host:/mnt/data/")
	p, err := s.Target(root)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "mnt", "data"), p)
}

func TestTargetSymlinkStaysInRoot(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Symlink("/etc", filepath.Join(root, "data")))
	require.NoError(t, os.Symlink("../../../..", filepath.Join(root, "up")))

	p, err := Parse("/x:/data").Target(root)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "etc"), p)

	p, err = Parse("/x:/up/etc").Target(root)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "etc"), p)
}
