// Package image loads raw ext4 partition images into a flat read-only byte
// buffer. Plain files are memory-mapped where the platform allows it;
// xz- and lz4-compressed images are decompressed into memory.
package image

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	lz4 "github.com/pierrec/lz4/v4"
	"github.com/sirupsen/logrus"
	"github.com/ulikunitz/xz"
	"gopkg.in/djherbis/times.v1"
)

// Image is a loaded partition image. Data is immutable for the lifetime of
// the parse; no decoded record outlives it.
type Image struct {
	Path       string
	Size       int64
	ModTime    time.Time
	AccessTime time.Time

	data   []byte
	mapped bool
}

// Open reads or maps the image at path. A missing or unreadable file is the
// only hard failure surface of the whole program.
func Open(path string) (*Image, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open image %s: %w", path, err)
	}

	img := &Image{
		Path: path,
		Size: fi.Size(),
	}
	if ts, err := times.Stat(path); err == nil {
		img.ModTime = ts.ModTime()
		img.AccessTime = ts.AccessTime()
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".xz":
		img.data, err = readCompressed(path, func(r io.Reader) (io.Reader, error) {
			return xz.NewReader(r)
		})
	case ".lz4":
		img.data, err = readCompressed(path, func(r io.Reader) (io.Reader, error) {
			return lz4.NewReader(r), nil
		})
	default:
		err = img.loadPlain(path, fi.Size())
	}
	if err != nil {
		return nil, err
	}

	logrus.Debugf("loaded %s: %d bytes (mapped=%v)", path, len(img.data), img.mapped)
	return img, nil
}

// Bytes is the flat image buffer all decoders address by absolute offset.
func (img *Image) Bytes() []byte {
	return img.data
}

// Close releases the mapping, if one is held. The buffer must not be used
// afterwards.
func (img *Image) Close() error {
	if !img.mapped {
		img.data = nil
		return nil
	}
	img.mapped = false
	b := img.data
	img.data = nil
	return unmap(b)
}

func (img *Image) loadPlain(path string, size int64) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("cannot open image %s: %w", path, err)
	}
	defer f.Close()

	if size > 0 {
		if b, err := mapFile(f, size); err == nil {
			img.data = b
			img.mapped = true
			return nil
		}
	}

	b, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("cannot read image %s: %w", path, err)
	}
	img.data = b
	return nil
}

func readCompressed(path string, wrap func(io.Reader) (io.Reader, error)) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open image %s: %w", path, err)
	}
	defer f.Close()

	r, err := wrap(f)
	if err != nil {
		return nil, fmt.Errorf("cannot decompress image %s: %w", path, err)
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("cannot decompress image %s: %w", path, err)
	}
	return b, nil
}
