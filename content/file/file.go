/*
Copyright The ORAS Authors.
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package file provides a file system based store for exported asset
// payloads.
package file

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/containerd/log"
	"github.com/opencontainers/go-digest"
	perrors "github.com/pkg/errors"

	"github.com/rigpull/rigpull/asset"
	"github.com/rigpull/rigpull/errdef"
)

// bufPool is a pool of byte buffers that can be reused for copying content
// to files.
var bufPool = sync.Pool{
	New: func() interface{} {
		// the buffer size should be larger than or equal to 128 KiB
		// for performance considerations.
		buffer := make([]byte, 1<<20) // buffer size = 1 MiB
		return &buffer
	},
}

// DefaultExtension is the file extension of payloads of kinds without
// configured extension.
const DefaultExtension = ".fbx"

var (
	// ErrSourceRead is returned when the content to store cannot be read.
	// Errors wrapping it also wrap the read error.
	ErrSourceRead = errors.New("failed to read content")

	// ErrPathTraversalDisallowed is returned when a payload would be
	// written outside of the working directory.
	ErrPathTraversalDisallowed = errors.New("path traversal disallowed")

	// ErrStoreClosed is returned when pushing to a closed store.
	ErrStoreClosed = errors.New("store already closed")
)

// Store represents a file system based store, writing each pushed payload
// to its own file in the working directory.
//
// A Store lives for a single download run: names handed out by the store
// are unique within the run, while files left by earlier runs are
// replaced.
type Store struct {
	// Extensions maps asset kinds to the file extensions of their
	// payloads, including the leading dot.
	// Kinds without extension use DefaultExtension.
	Extensions map[asset.Kind]string

	workingDir string
	closed     bool
	mu         sync.Mutex          // protects names and closed
	names      map[string]struct{} // lower-cased file names taken in this run
	tmpFiles   sync.Map            // map[string]bool
}

// New creates a file store writing to workingDir.
func New(workingDir string) *Store {
	return &Store{
		workingDir: workingDir,
		names:      make(map[string]struct{}),
	}
}

// Close cleans up all the temp files left by the file store.
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	var errs []string
	s.tmpFiles.Range(func(name, _ interface{}) bool {
		if err := os.Remove(name.(string)); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err.Error())
		}
		s.tmpFiles.Delete(name)
		return true
	})
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// Push writes the payload of desc read from content to the working
// directory, and returns the written artifact.
//
// The content is streamed to a temp file in the working directory which
// replaces the target file once completely written. On failure, the temp
// file is removed and no file is left behind. Failures are reported as
// *errdef.DownloadError; failures to read content also wrap ErrSourceRead.
func (s *Store) Push(ctx context.Context, desc asset.Descriptor, content io.Reader) (artifact asset.Artifact, err error) {
	name, err := s.claim(desc)
	if err != nil {
		return asset.Artifact{}, errdef.NewDownloadError(desc.DisplayName(), "", err)
	}
	defer func() {
		if err != nil {
			s.release(name)
		}
	}()

	path, err := s.resolveWritePath(name)
	if err != nil {
		return asset.Artifact{}, errdef.NewDownloadError(desc.DisplayName(), "", err)
	}
	dgst, size, err := s.pushFile(ctx, path, content)
	if err != nil {
		return asset.Artifact{}, errdef.NewDownloadError(desc.DisplayName(), path, err)
	}

	log.G(ctx).WithFields(log.Fields{
		"path":   path,
		"digest": dgst,
		"size":   size,
	}).Debug("payload written")
	return asset.Artifact{
		ID:     desc.ID,
		Name:   desc.DisplayName(),
		Path:   path,
		Digest: dgst,
		Size:   size,
	}, nil
}

// pushFile streams content to a temp file and renames it to target.
func (s *Store) pushFile(ctx context.Context, target string, content io.Reader) (dgst digest.Digest, size int64, err error) {
	if err := ensureDir(filepath.Dir(target)); err != nil {
		return "", 0, perrors.Wrap(err, "failed to ensure directories of the target path")
	}

	fp, err := s.tempFile()
	if err != nil {
		return "", 0, perrors.Wrap(err, "failed to create temp file")
	}
	tmp := fp.Name()
	defer func() {
		if err != nil {
			fp.Close()
			if removeErr := os.Remove(tmp); removeErr != nil && !os.IsNotExist(removeErr) {
				log.G(ctx).WithError(removeErr).WithField("path", tmp).Warn("failed to remove partial file")
			}
		}
		s.tmpFiles.Delete(tmp)
	}()

	digester := digest.Canonical.Digester()
	size, err = copyContent(io.MultiWriter(fp, digester.Hash()), content)
	if err != nil {
		return "", 0, err
	}
	if err := fp.Chmod(0644); err != nil {
		return "", 0, perrors.Wrapf(err, "failed to set mode of %s", tmp)
	}
	if err := fp.Close(); err != nil {
		return "", 0, perrors.Wrapf(err, "failed to close %s", tmp)
	}
	if err := os.Rename(tmp, target); err != nil {
		return "", 0, perrors.Wrapf(err, "failed to move %s to %s", tmp, target)
	}
	return digester.Digest(), size, nil
}

// copyContent copies src to dst, telling read failures apart from write
// failures.
func copyContent(dst io.Writer, src io.Reader) (int64, error) {
	buf := bufPool.Get().(*[]byte)
	defer bufPool.Put(buf)

	var written int64
	for {
		n, rerr := src.Read(*buf)
		if n > 0 {
			wn, werr := dst.Write((*buf)[:n])
			written += int64(wn)
			if werr != nil {
				return written, perrors.Wrap(werr, "failed to write content")
			}
			if wn != n {
				return written, io.ErrShortWrite
			}
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, fmt.Errorf("%w: %w", ErrSourceRead, rerr)
		}
	}
}

// claim reserves a file name for desc, unique within the run.
// The first payload named "Walk" is written to "Walk.fbx", the next ones
// to "Walk (1).fbx", "Walk (2).fbx" and so on.
func (s *Store) claim(desc asset.Descriptor) (string, error) {
	base := Sanitize(desc.Name)
	if base == "" {
		base = Sanitize("asset-" + desc.ID)
	}
	if base == "" {
		base = "asset"
	}
	ext := s.extension(desc.Kind)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrStoreClosed
	}
	name := base + ext
	for i := 1; ; i++ {
		key := strings.ToLower(name)
		if _, taken := s.names[key]; !taken {
			s.names[key] = struct{}{}
			return name, nil
		}
		name = fmt.Sprintf("%s (%d)%s", base, i, ext)
	}
}

// release frees a name claimed for a payload which could not be written.
func (s *Store) release(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.names, strings.ToLower(name))
}

// extension returns the file extension for the kind.
func (s *Store) extension(kind asset.Kind) string {
	ext, ok := s.Extensions[kind]
	if !ok || ext == "" {
		return DefaultExtension
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// resolveWritePath resolves the path to write for the given name.
func (s *Store) resolveWritePath(name string) (string, error) {
	base, err := filepath.Abs(s.workingDir)
	if err != nil {
		return "", err
	}
	target := filepath.Join(base, name)
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return "", ErrPathTraversalDisallowed
	}
	rel = filepath.ToSlash(rel)
	if strings.HasPrefix(rel, "../") || rel == ".." || strings.Contains(rel, "/") {
		return "", ErrPathTraversalDisallowed
	}
	return target, nil
}

// tempFile creates a hidden temp file in the working directory, so that
// the final rename stays on the same file system.
func (s *Store) tempFile() (*os.File, error) {
	if err := ensureDir(s.workingDir); err != nil {
		return nil, err
	}
	tmp, err := os.CreateTemp(s.workingDir, ".rigpull_*.part")
	if err != nil {
		return nil, err
	}

	s.tmpFiles.Store(tmp.Name(), true)
	return tmp, nil
}

// ensureDir ensures the directories of the path exists.
func ensureDir(path string) error {
	return os.MkdirAll(path, 0777)
}
