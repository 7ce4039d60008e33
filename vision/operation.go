package vision

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/vision/v2/apiv1/visionpb"

	"github.com/RogelioDavid/VisionOCR/storage"
)

// DocumentOCROperation tracks a document OCR run submitted through
// RunOCRForDocument. It completes once the backing Vision operation has
// finished and, on success, the output file set has been listed and parsed.
type DocumentOCROperation struct {
	name string
	done chan struct{}

	// written once by the watch goroutine before done is closed
	resultSet *DocumentOCRResultSet
	err       error
}

// Name returns the server-assigned name of the backing operation. It can be
// used to look the operation up out of process.
func (op *DocumentOCROperation) Name() string {
	return op.name
}

// Done reports whether the operation has completed, without blocking.
func (op *DocumentOCROperation) Done() bool {
	select {
	case <-op.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the operation completes or ctx is cancelled. On success
// it returns the result set of the parsed OCR output files. If the backing
// operation failed, its error is returned and the output files are never
// touched.
func (op *DocumentOCROperation) Wait(ctx context.Context) (*DocumentOCRResultSet, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-op.done:
		return op.resultSet, op.err
	}
}

func (t *DocumentOCRTemplate) watchOperation(ctx context.Context, op AnnotateFilesOperation) *DocumentOCROperation {
	result := &DocumentOCROperation{name: op.Name(), done: make(chan struct{})}
	go func() {
		defer close(result.done)

		response, err := op.Wait(ctx)
		if err != nil {
			result.err = fmt.Errorf("OCR operation %s failed: %w", result.name, err)
			return
		}
		result.resultSet, result.err = t.resultSetFromResponse(ctx, response)
	}()
	return result
}

func (t *DocumentOCRTemplate) resultSetFromResponse(ctx context.Context, response *visionpb.AsyncBatchAnnotateFilesResponse) (*DocumentOCRResultSet, error) {
	responses := response.GetResponses()
	if len(responses) == 0 {
		return nil, errors.New("operation completed with an empty response")
	}

	outputURI := responses[0].GetOutputConfig().GetGcsDestination().GetUri()
	outputLocation, err := storage.ParseLocation(outputURI)
	if err != nil {
		return nil, fmt.Errorf("failed to parse output destination %q: %w", outputURI, err)
	}
	return t.ParseOCROutputFileSet(ctx, outputLocation)
}
