// Package storage keeps uploaded spreadsheets so an interrupted import can be resumed.
package storage

import (
	"errors"
	"io"
)

var ErrInvalidKey = errors.New("invalid blob key")

// BlobStore stores opaque blobs under slash-separated keys.
type BlobStore interface {
	Put(key string, r io.Reader) (string, error) // returns canonical key
	Get(key string) (io.ReadCloser, error)
	Delete(key string) error
}

// UploadKey is the key of a job's uploaded spreadsheet.
func UploadKey(jobID, filename string) string {
	return "importacoes/" + jobID + "/" + filename
}
