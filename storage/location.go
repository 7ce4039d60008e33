package storage

import (
	"fmt"
	"strings"
)

// URIPrefix is the scheme prefix of every Google Cloud Storage URI.
const URIPrefix = "gs://"

// Location identifies a bucket, a folder, or a file in Google Cloud Storage.
// The zero value is not a valid location; use the For* constructors or
// ParseLocation.
type Location struct {
	bucket string
	object string
}

// ForBucket returns the location of a bucket.
func ForBucket(bucket string) Location {
	return Location{bucket: bucket}
}

// ForFile returns the location of a single object inside a bucket.
func ForFile(bucket, path string) Location {
	return Location{bucket: bucket, object: path}
}

// ForFolder returns the location of a folder inside a bucket. A trailing
// slash is appended to the path if it is missing.
func ForFolder(bucket, path string) Location {
	if !strings.HasSuffix(path, "/") {
		path += "/"
	}
	return Location{bucket: bucket, object: path}
}

// ParseLocation parses a gs://bucket/path URI into a Location.
func ParseLocation(uri string) (Location, error) {
	if !strings.HasPrefix(uri, URIPrefix) {
		return Location{}, fmt.Errorf("invalid Cloud Storage URI %q: must start with %s", uri, URIPrefix)
	}
	bucket, object, _ := strings.Cut(strings.TrimPrefix(uri, URIPrefix), "/")
	if bucket == "" {
		return Location{}, fmt.Errorf("invalid Cloud Storage URI %q: no bucket specified", uri)
	}
	return Location{bucket: bucket, object: object}, nil
}

// Bucket returns the bucket name of the location.
func (l Location) Bucket() string {
	return l.bucket
}

// Object returns the object path of the location within its bucket. It is
// empty for bucket locations.
func (l Location) Object() string {
	return l.object
}

// IsBucket reports whether the location references a bucket itself rather
// than an object inside it.
func (l Location) IsBucket() bool {
	return l.object == ""
}

// IsFile reports whether the location references a single object.
func (l Location) IsFile() bool {
	return l.object != "" && !strings.HasSuffix(l.object, "/")
}

// IsFolder reports whether the location references a folder, i.e. an object
// path with a trailing slash.
func (l Location) IsFolder() bool {
	return l.object != "" && strings.HasSuffix(l.object, "/")
}

// URI returns the gs://bucket/path form of the location.
func (l Location) URI() string {
	return fmt.Sprintf("gs://%s/%s", l.bucket, l.object)
}

func (l Location) String() string {
	return l.URI()
}
