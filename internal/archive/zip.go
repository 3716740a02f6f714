// Package archive packs a directory tree into a zip stream and unpacks it again.
package archive

import (
	"archive/zip"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/zeebo/errs"
)

// Error wraps every failure raised by this package.
var Error = errs.Class("archive")

// ErrUnsafePath is returned when an entry would be written outside the destination.
var ErrUnsafePath = errors.New("archive entry escapes destination directory")

// Zip writes every regular file under root into dest, named by its path
// relative to root with forward slashes. It returns the number of files written.
//
// dest is not closed.
func Zip(ctx context.Context, root string, dest io.Writer) (count int, err error) {
	absroot, err := filepath.Abs(root)
	if err != nil {
		return 0, Error.Wrap(err)
	}
	if _, err := os.Stat(absroot); err != nil {
		return 0, Error.Wrap(err)
	}

	zw := zip.NewWriter(dest)
	defer func() { err = errs.Combine(err, Error.Wrap(zw.Close())) }()

	err = filepath.WalkDir(absroot, func(fullpath string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(absroot, fullpath)
		if err != nil {
			return err
		}

		hdr, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		hdr.Method = zip.Deflate

		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return err
		}
		if err := copyFile(ctx, w, fullpath); err != nil {
			return err
		}
		count++
		return nil
	})
	if err != nil {
		return count, Error.Wrap(err)
	}
	return count, nil
}

// Unzip extracts the archive at src into dest, creating dest when needed and
// overwriting files with matching relative paths. It returns the number of
// files written.
func Unzip(ctx context.Context, src, dest string) (count int, err error) {
	zr, err := zip.OpenReader(src)
	if errors.Is(err, zip.ErrInsecurePath) {
		if zr != nil {
			_ = zr.Close()
		}
		return 0, Error.Wrap(ErrUnsafePath)
	}
	if err != nil {
		return 0, Error.Wrap(err)
	}
	defer func() { err = errs.Combine(err, Error.Wrap(zr.Close())) }()

	absdest, err := filepath.Abs(dest)
	if err != nil {
		return 0, Error.Wrap(err)
	}
	if err := os.MkdirAll(absdest, 0o755); err != nil {
		return 0, Error.Wrap(err)
	}

	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return count, Error.Wrap(err)
		}

		target, err := SafeJoin(absdest, f.Name)
		if err != nil {
			return count, Error.Wrap(err)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return count, Error.Wrap(err)
			}
			continue
		}
		if !f.Mode().IsRegular() {
			continue
		}

		if err := extractFile(ctx, f, target); err != nil {
			return count, Error.Wrap(err)
		}
		count++
	}
	return count, nil
}

// ReadFile returns the contents of the entry called name in the archive at
// src. A missing entry yields an error matching fs.ErrNotExist.
func ReadFile(src, name string) (data []byte, err error) {
	zr, err := zip.OpenReader(src)
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return nil, Error.Wrap(err)
	}
	defer func() { err = errs.Combine(err, Error.Wrap(zr.Close())) }()

	f, err := zr.Open(name)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { err = errs.Combine(err, Error.Wrap(f.Close())) }()

	data, err = io.ReadAll(f)
	return data, Error.Wrap(err)
}

// SafeJoin resolves name under root and fails with ErrUnsafePath when the
// result would leave root.
func SafeJoin(root, name string) (string, error) {
	if name == "" || filepath.IsAbs(name) || strings.HasPrefix(name, "/") || filepath.VolumeName(name) != "" {
		return "", ErrUnsafePath
	}
	target := filepath.Join(root, filepath.FromSlash(name))
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return "", ErrUnsafePath
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrUnsafePath
	}
	return target, nil
}

func extractFile(ctx context.Context, f *zip.File, target string) (err error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer func() { err = errs.Combine(err, rc.Close()) }()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() { err = errs.Combine(err, out.Close()) }()

	_, err = io.Copy(out, &ctxReader{ctx: ctx, r: rc})
	return err
}

func copyFile(ctx context.Context, w io.Writer, path string) (err error) {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { err = errs.Combine(err, f.Close()) }()

	_, err = io.Copy(w, &ctxReader{ctx: ctx, r: f})
	return err
}

// ctxReader stops reading once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (r *ctxReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}
