package ccsds

import (
	"github.com/pkg/errors"
)

// ErrLength reports that a requested or derived size does not fit a format's
// fixed capacity, or that a length field implies a negative data length.
var ErrLength = errors.New("length exceeds format capacity")

// ErrChecksum reports that a frame's error control field does not match the
// checksum recomputed over the received bytes.
var ErrChecksum = errors.New("error control field mismatch")
