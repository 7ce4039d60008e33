package vision

import "errors"

var (
	// ErrNotFile is returned when an operation that requires a single Cloud
	// Storage object is given a bucket or folder location.
	ErrNotFile = errors.New("storage location is not a file")

	// ErrDocumentNotFound is returned when the document to process does not
	// exist in Cloud Storage.
	ErrDocumentNotFound = errors.New("document does not exist")
)
