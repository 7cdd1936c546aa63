// Package publish uploads finished render artifacts to object storage
// and produces their public URLs. It defines the Publisher port with S3
// and local-filesystem implementations.
package publish

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrPublishFailed is returned when an artifact cannot be uploaded.
// Publishing never retries; retry policy belongs to the caller.
var ErrPublishFailed = errors.New("publish: upload failed")

// Result describes a published artifact.
type Result struct {
	// URL is the publicly resolvable location of the artifact.
	URL string
	// Key is the object key the artifact was stored under.
	Key string
	// SizeBytes is the artifact size.
	SizeBytes int64
}

// Publisher uploads a local artifact under an object key. The upload is
// atomic from the caller's perspective: the final key is either fully
// present or absent.
type Publisher interface {
	Publish(ctx context.Context, localPath, key string) (Result, error)
}

// ObjectKey builds the deterministic object key for a job artifact:
// prefix + job id + extension. Keys derive from the job id, so
// concurrent jobs can never collide.
func ObjectKey(prefix, jobID, ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return prefix + jobID + ext
}

// PublicURL constructs the public URL for an object. It is a pure
// function of its inputs: with a base URL configured the result is
// base + key, otherwise the S3 virtual-hosted URL for (bucket, region).
func PublicURL(baseURL, bucket, region, key string) string {
	if baseURL != "" {
		return strings.TrimSuffix(baseURL, "/") + "/" + key
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", bucket, region, key)
}

// contentTypes maps artifact extensions to MIME types. The mime package
// does not register video types on all platforms, so the table is explicit.
var contentTypes = map[string]string{
	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
	".webm": "video/webm",
	".mkv":  "video/x-matroska",
}

// contentType guesses the MIME type from the artifact extension,
// defaulting to video/mp4.
func contentType(path string) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(path))]; ok {
		return ct
	}
	return "video/mp4"
}
