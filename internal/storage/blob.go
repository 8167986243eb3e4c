// Package storage keeps uploaded assignment submissions.
package storage

import (
	"context"
	"io"
	"path"
	"strings"
)

type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader) (string, error) // returns canonical key
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// SubmissionKey places a learner's upload for an assignment under a stable
// prefix. Only the base name of filename is kept.
func SubmissionKey(courseID, assignmentID, learnerID, filename string) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "submission"
	}
	return path.Join("submissions", courseID, assignmentID, learnerID, name)
}
