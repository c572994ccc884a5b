// Package volume parses host:container bind mount specifications.
package volume

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
)

// ErrInvalid is returned when a Spec cannot be used for mounting
var ErrInvalid = errors.New("volume: invalid spec")

// Spec is a parsed "host:container" pair
type Spec struct {
	HostPath      string `json:"host_path"`
	ContainerPath string `json:"container_path"`
	Valid         bool   `json:"valid"`
}

// Parse splits s on its single ':' separator. The result is valid only when
// there is exactly one separator and both sides are non-empty.
func Parse(s string) Spec {
	parts := strings.Split(s, ":")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Spec{}
	}
	return Spec{
		HostPath:      parts[0],
		ContainerPath: parts[1],
		Valid:         true,
	}
}

// Validate checks that the spec is safe to hand to mount(2)
func (s Spec) Validate() error {
	if !s.Valid {
		return ErrInvalid
	}
	for _, p := range []string{s.HostPath, s.ContainerPath} {
		if !filepath.IsAbs(p) {
			return fmt.Errorf("%w: %q is not absolute", ErrInvalid, p)
		}
		// the overlay option string is comma separated
		if strings.ContainsAny(p, ",\n") {
			return fmt.Errorf("%w: %q contains a comma or newline", ErrInvalid, p)
		}
	}
	for _, e := range strings.Split(s.ContainerPath, "/") {
		if e == ".." {
			return fmt.Errorf("%w: %q escapes the container root", ErrInvalid, s.ContainerPath)
		}
	}
	return nil
}

// Target returns the mount point of the volume under root. Symlinks in the
// container path are resolved as if root were "/", so an image cannot point
// the mount at a host path.
func (s Spec) Target(root string) (string, error) {
	p, err := securejoin.SecureJoin(root, s.ContainerPath)
	if err != nil {
		return "", fmt.Errorf("volume: resolve %s: %w", s.ContainerPath, err)
	}
	return p, nil
}

func (s Spec) String() string {
	if !s.Valid {
		return "volume[invalid]"
	}
	return "volume[" + s.HostPath + ":" + s.ContainerPath + "]"
}
