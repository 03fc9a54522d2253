//go:build !linux

package image

import (
	"errors"
	"os"
)

var errNoMmap = errors.New("memory mapping not supported on this platform")

func mapFile(_ *os.File, _ int64) ([]byte, error) {
	return nil, errNoMmap
}

func unmap(_ []byte) error {
	return nil
}
