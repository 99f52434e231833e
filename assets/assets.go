// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package assets resolves resource paths against the asset root, which
// is either a directory or a kar archive, and decodes textures.
package assets

import (
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/exp/mmap"

	"github.com/devblok/korugraph/utility/kar"
)

// VirtualRoot prefixes resource paths that live under the asset root.
const VirtualRoot = ":asset/"

// package errors
var (
	ErrNotFound = errors.New("resource not found")
	ErrPath     = errors.New("malformed resource path")
)

// FS reads resources by path.
type FS interface {
	ReadFile(respath string) ([]byte, error)
	Close() error
}

// Clean turns a resource path into a slash separated path relative to
// the asset root. Paths escaping the root are rejected.
func Clean(respath string) (string, error) {
	rel := strings.TrimPrefix(respath, VirtualRoot)
	if rel == "" || strings.HasPrefix(rel, ":") {
		return "", errors.Wrap(ErrPath, respath)
	}
	rel = path.Clean(strings.ReplaceAll(rel, "\\", "/"))
	if !fs.ValidPath(rel) {
		return "", errors.Wrap(ErrPath, respath)
	}
	return rel, nil
}

// Open opens root as a kar archive when it has the .kar extension,
// as a directory otherwise.
func Open(root string) (FS, error) {
	if strings.EqualFold(filepath.Ext(root), ".kar") {
		return OpenArchive(root)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, errors.Wrap(err, "open asset root")
	}
	if !info.IsDir() {
		return nil, errors.Errorf("asset root %s is neither a directory nor a kar archive", root)
	}
	return Dir(os.DirFS(root)), nil
}

type dirFS struct {
	fsys fs.FS
}

// Dir serves resources from fsys.
func Dir(fsys fs.FS) FS {
	return &dirFS{fsys: fsys}
}

func (d *dirFS) ReadFile(respath string) ([]byte, error) {
	rel, err := Clean(respath)
	if err != nil {
		return nil, err
	}
	data, err := fs.ReadFile(d.fsys, rel)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errors.Wrap(ErrNotFound, respath)
	}
	return data, errors.Wrap(err, respath)
}

func (d *dirFS) Close() error {
	return nil
}

type archiveFS struct {
	mapped  *mmap.ReaderAt
	archive *kar.Archive
}

// OpenArchive memory maps a kar archive and serves resources from it.
func OpenArchive(file string) (FS, error) {
	mapped, err := mmap.Open(file)
	if err != nil {
		return nil, errors.Wrap(err, "mmap asset archive")
	}
	archive, err := kar.Open(mapped)
	if err != nil {
		mapped.Close()
		return nil, errors.Wrapf(err, "open asset archive %s", file)
	}
	return &archiveFS{mapped: mapped, archive: archive}, nil
}

func (a *archiveFS) ReadFile(respath string) ([]byte, error) {
	rel, err := Clean(respath)
	if err != nil {
		return nil, err
	}
	data, err := a.archive.ReadAll(rel)
	if err == kar.ErrNotFound {
		return nil, errors.Wrap(ErrNotFound, respath)
	}
	return data, errors.Wrap(err, respath)
}

func (a *archiveFS) Close() error {
	return a.mapped.Close()
}
