// Package archive extracts image tarballs into layer directories and commits
// container roots back into tarballs.
package archive

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsafePath is returned for entries that would land outside the destination
var ErrUnsafePath = errors.New("archive: entry escapes destination")

// Extract unpacks the tar file at src into dst, creating dst if needed
func Extract(ctx context.Context, src, dst string) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("archive: open %s: %w", src, err)
	}
	defer f.Close()

	if err := os.MkdirAll(dst, 0755); err != nil {
		return fmt.Errorf("archive: mkdir %s: %w", dst, err)
	}
	tr := tar.NewReader(f)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("archive: read %s: %w", src, err)
		}
		if err := extractEntry(dst, hdr, tr); err != nil {
			return err
		}
	}
}

func extractEntry(dst string, hdr *tar.Header, r io.Reader) error {
	target, err := securePath(dst, hdr.Name)
	if err != nil {
		return err
	}
	mode := fs.FileMode(hdr.Mode) & fs.ModePerm

	switch hdr.Typeflag {
	case tar.TypeDir:
		if err := os.MkdirAll(target, mode|0700); err != nil {
			return fmt.Errorf("archive: mkdir %s: %w", hdr.Name, err)
		}

	case tar.TypeReg:
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return fmt.Errorf("archive: mkdir %s: %w", hdr.Name, err)
		}
		out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
		if err != nil {
			return fmt.Errorf("archive: create %s: %w", hdr.Name, err)
		}
		if _, err := io.Copy(out, r); err != nil {
			out.Close()
			return fmt.Errorf("archive: write %s: %w", hdr.Name, err)
		}
		if err := out.Close(); err != nil {
			return err
		}

	case tar.TypeSymlink:
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return fmt.Errorf("archive: mkdir %s: %w", hdr.Name, err)
		}
		os.Remove(target)
		if err := os.Symlink(hdr.Linkname, target); err != nil {
			return fmt.Errorf("archive: symlink %s: %w", hdr.Name, err)
		}

	case tar.TypeLink:
		old, err := securePath(dst, hdr.Linkname)
		if err != nil {
			return err
		}
		os.Remove(target)
		if err := os.Link(old, target); err != nil {
			return fmt.Errorf("archive: link %s: %w", hdr.Name, err)
		}

	default:
		// device nodes and fifos are provided by the runtime, not the image
	}
	return nil
}

func securePath(dst, name string) (string, error) {
	p := filepath.Join(dst, name)
	if p != filepath.Clean(dst) && !strings.HasPrefix(p, filepath.Clean(dst)+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}
	return p, nil
}

// Create archives the tree at src into the tar file dst. The archive is
// written next to dst and renamed into place when complete.
func Create(ctx context.Context, src, dst string) (err error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("archive: mkdir: %w", err)
	}
	f, err := os.CreateTemp(filepath.Dir(dst), ".commit-*")
	if err != nil {
		return fmt.Errorf("archive: create: %w", err)
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(f.Name())
		}
	}()

	tw := tar.NewWriter(f)
	err = filepath.Walk(src, func(p string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil || rel == "." {
			return err
		}
		return addEntry(tw, p, filepath.ToSlash(rel), fi)
	})
	if err != nil {
		return fmt.Errorf("archive: walk %s: %w", src, err)
	}
	if err = tw.Close(); err != nil {
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), dst)
}

func addEntry(tw *tar.Writer, p, name string, fi os.FileInfo) error {
	var link string
	if fi.Mode()&os.ModeSymlink != 0 {
		l, err := os.Readlink(p)
		if err != nil {
			return err
		}
		link = l
	}
	hdr, err := tar.FileInfoHeader(fi, link)
	if err != nil {
		return err
	}
	hdr.Name = name
	if fi.IsDir() {
		hdr.Name += "/"
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	if !fi.Mode().IsRegular() {
		return nil
	}
	in, err := os.Open(p)
	if err != nil {
		return err
	}
	defer in.Close()
	_, err = io.Copy(tw, in)
	return err
}
