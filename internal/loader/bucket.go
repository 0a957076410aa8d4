package loader

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidBucketPath = errors.New("invalid bucket path")

// BucketPath names a bucket and an optional object prefix inside it.
type BucketPath struct {
	Bucket string
	Prefix string
}

// ParseBucketPath accepts "bucket", "bucket/prefix" and "gs://bucket/prefix".
// A non-empty prefix always ends with a slash.
func ParseBucketPath(s string) (BucketPath, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "gs://")
	s = strings.TrimLeft(s, "/")

	bucket, prefix, _ := strings.Cut(s, "/")
	if bucket == "" {
		return BucketPath{}, fmt.Errorf("%w: missing bucket name", ErrInvalidBucketPath)
	}
	if strings.ContainsAny(bucket, " \t:") {
		return BucketPath{}, fmt.Errorf("%w: '%s'", ErrInvalidBucketPath, bucket)
	}

	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return BucketPath{Bucket: bucket, Prefix: prefix}, nil
}

func (b BucketPath) String() string {
	return "gs://" + b.Bucket + "/" + b.Prefix
}
