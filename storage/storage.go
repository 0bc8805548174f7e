package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
)

// BlobStore is a flat, path-addressed object store. Names use forward slashes
// (e.g. versions/<hash>.zip) and are relative to the public CDN root.
type BlobStore interface {
	Store(ctx context.Context, name string, content []byte, contentType string) error
}

const (
	versionsPrefix = "versions/"
	imagesPrefix   = "artifact_images/"

	ZipContentType = "application/zip"
)

// Checksum returns the lowercase hex sha256 of content.
func Checksum(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

func VersionPath(hash string) string {
	return versionsPrefix + hash + ".zip"
}

// ImagePath is the content-addressed location of a plugin image.
func ImagePath(pluginName string, img *Image) string {
	return imagesPrefix + url.PathEscape(pluginName) + "-" + Checksum(img.Content) + img.Extension
}
