package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrUnsupported      = errors.New("unsupported operation")
	ErrUnavailable      = errors.New("torrserver unavailable")
	ErrKeyNotFound      = errors.New("key not found")
	ErrNoHash           = errors.New("torrent hash is not assigned")
	ErrHashAssigned     = errors.New("torrent hash already assigned")
	ErrInvalidFileIndex = errors.New("invalid file index")
)
