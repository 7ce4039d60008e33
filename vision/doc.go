// Package vision provides template helpers for the Google Cloud Vision API.
//
// CloudVisionTemplate annotates single images held in memory and extracts
// text from them. DocumentOCRTemplate runs asynchronous document text
// detection on PDF and TIFF files stored in Google Cloud Storage, tracks the
// resulting long-running operations, and parses the JSON output files the
// Vision API writes back to storage.
package vision
