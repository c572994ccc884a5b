package container

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

var (
	errNotFound = errors.New("executable file not found in $PATH")
	errNoPath   = errors.New("no PATH environment variable provided for look up")
)

func findExecutable(file string) error {
	d, err := os.Stat(file)
	if err != nil {
		return err
	}
	if m := d.Mode(); !m.IsDir() && m&0111 != 0 {
		return nil
	}
	return fs.ErrPermission
}

// lookPath resolves name against the PATH of env, the last PATH entry wins.
// Names containing a slash are used as given.
func lookPath(name string, env []string) (string, error) {
	if strings.Contains(name, "/") {
		if err := findExecutable(name); err != nil {
			return "", err
		}
		return name, nil
	}
	path, err := findPath(env)
	if err != nil {
		return "", err
	}
	for _, dir := range path {
		if dir == "" {
			dir = "."
		}
		p := filepath.Join(dir, name)
		if err := findExecutable(p); err == nil {
			return p, nil
		}
	}
	return "", errNotFound
}

func findPath(env []string) ([]string, error) {
	const pathPrefix = "PATH="
	for i := len(env) - 1; i >= 0; i-- {
		s := env[i]
		if strings.HasPrefix(s, pathPrefix) {
			return filepath.SplitList(s[len(pathPrefix):]), nil
		}
	}
	return nil, errNoPath
}
