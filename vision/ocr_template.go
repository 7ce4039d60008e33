package vision

import (
	"context"
	"errors"
	"fmt"
	"sort"

	gcs "cloud.google.com/go/storage"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/RogelioDavid/VisionOCR/pkg/utils"
	"github.com/RogelioDavid/VisionOCR/storage"
)

// outputContentType is the content type the Vision API assigns to the JSON
// output files of a document OCR run.
const outputContentType = "application/octet-stream"

// DocumentOCRTemplate runs document OCR on PDF and TIFF files stored in
// Google Cloud Storage and parses the output files written back by the
// Vision API.
type DocumentOCRTemplate struct {
	annotator     ImageAnnotatorClient
	storageClient storage.Client
}

// NewDocumentOCRTemplate returns a template running OCR through annotator and
// reading documents and OCR output through storageClient.
func NewDocumentOCRTemplate(annotator ImageAnnotatorClient, storageClient storage.Client) *DocumentOCRTemplate {
	return &DocumentOCRTemplate{annotator: annotator, storageClient: storageClient}
}

// RunOCRForDocument starts OCR on the document at document and returns a
// handle to the running operation. The Vision API writes one JSON output file
// per document page under outputPathPrefix. The document's MIME type is taken
// from its Cloud Storage content type, so it must be set correctly on upload.
//
// The returned operation is watched on a goroutine governed by ctx; once the
// backing operation completes successfully the output file set is listed and
// parsed before the operation is marked done.
func (t *DocumentOCRTemplate) RunOCRForDocument(ctx context.Context, document, outputPathPrefix storage.Location) (*DocumentOCROperation, error) {
	if !document.IsFile() {
		return nil, fmt.Errorf("%w: provided document location %s", ErrNotFile, document)
	}

	attrs, err := t.storageClient.Attrs(ctx, document)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, document)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up document %s: %w", document, err)
	}

	request := &visionpb.AsyncAnnotateFileRequest{
		Features: []*visionpb.Feature{
			{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION},
		},
		InputConfig: &visionpb.InputConfig{
			MimeType: attrs.ContentType,
			GcsSource: &visionpb.GcsSource{
				Uri: document.URI(),
			},
		},
		OutputConfig: &visionpb.OutputConfig{
			GcsDestination: &visionpb.GcsDestination{
				Uri: outputPathPrefix.URI(),
			},
			BatchSize: 1, /* =one output file per page */
		},
	}

	op, err := t.annotator.AsyncBatchAnnotateFiles(ctx, &visionpb.AsyncBatchAnnotateFilesRequest{
		Requests: []*visionpb.AsyncAnnotateFileRequest{request},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to submit OCR request for %s: %w", document, err)
	}

	return t.watchOperation(ctx, op), nil
}

// ParseOCROutputFileSet lists the OCR output files under jsonFilesetPrefix
// and returns them as a result set ordered by page number. Output files are
// recognized by their content type; files whose name does not carry a page
// range sort before all others. File contents are not fetched until pages are
// requested from the result set.
func (t *DocumentOCRTemplate) ParseOCROutputFileSet(ctx context.Context, jsonFilesetPrefix storage.Location) (*DocumentOCRResultSet, error) {
	blobs, err := t.storageClient.ListDirectory(ctx, jsonFilesetPrefix.Bucket(), jsonFilesetPrefix.Object())
	if err != nil {
		return nil, err
	}

	outputBlobs := utils.Filter(blobs, func(attrs *gcs.ObjectAttrs) bool {
		return attrs.ContentType == outputContentType
	})
	ranges := utils.Map(outputBlobs, newPageRange)
	sort.SliceStable(ranges, func(i, j int) bool {
		return ranges[i].startPage < ranges[j].startPage
	})

	return &DocumentOCRResultSet{ranges: ranges, storageClient: t.storageClient}, nil
}

// ParseOCROutputFile reads a single OCR output file and returns the text
// annotation of its first page.
func (t *DocumentOCRTemplate) ParseOCROutputFile(ctx context.Context, jsonFile storage.Location) (*visionpb.TextAnnotation, error) {
	if !jsonFile.IsFile() {
		return nil, fmt.Errorf("%w: provided output file location %s", ErrNotFile, jsonFile)
	}

	content, err := t.storageClient.Content(ctx, jsonFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read OCR output file %s: %w", jsonFile, err)
	}

	response, err := parseAnnotateFileResponse(content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse OCR output file %s: %w", jsonFile, err)
	}
	if len(response.GetResponses()) == 0 {
		return nil, fmt.Errorf("OCR output file %s contains no responses", jsonFile)
	}
	return response.GetResponses()[0].GetFullTextAnnotation(), nil
}

func parseAnnotateFileResponse(content []byte) (*visionpb.AnnotateFileResponse, error) {
	response := &visionpb.AnnotateFileResponse{}
	if err := protojson.Unmarshal(content, response); err != nil {
		return nil, err
	}
	return response, nil
}
