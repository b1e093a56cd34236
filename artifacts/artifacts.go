// Package artifacts stores build outputs and hands back locators for them.
package artifacts

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
)

// A Store persists a produced artifact under a key and returns a locator
// (URI) for it. The queue and the job record treat the locator as opaque.
type Store interface {
	Put(key string, r io.Reader) (string, error)
}

// Dir stores artifacts as files under a root directory. Locators are file://
// URLs. Useful for development and tests.
type Dir struct {
	Root string
}

func NewDir(root string) *Dir {
	return &Dir{Root: root}
}

func (d *Dir) Put(key string, r io.Reader) (string, error) {
	path := filepath.Join(d.Root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", err
	}
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	return u.String(), nil
}

// Discard throws artifacts away and returns a fixed locator. For tests that
// don't care about the artifact contents.
type Discard struct{}

func (Discard) Put(key string, r io.Reader) (string, error) {
	if _, err := io.Copy(io.Discard, r); err != nil {
		return "", err
	}
	return fmt.Sprintf("discard://%s", key), nil
}
