package vision

import (
	"context"

	gcv "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	gax "github.com/googleapis/gax-go/v2"
)

// ImageAnnotatorClient is an interface for the gcv.ImageAnnotatorClient
// Ref: https://pkg.go.dev/cloud.google.com/go/vision/v2/apiv1
// This interface is used for mocking the gcv.ImageAnnotatorClient in unit tests.
type ImageAnnotatorClient interface {
	BatchAnnotateImages(ctx context.Context, req *visionpb.BatchAnnotateImagesRequest, opts ...gax.CallOption) (*visionpb.BatchAnnotateImagesResponse, error)
	AsyncBatchAnnotateFiles(ctx context.Context, req *visionpb.AsyncBatchAnnotateFilesRequest, opts ...gax.CallOption) (AnnotateFilesOperation, error)
}

// AnnotateFilesOperation is an interface for the long-running operation handle
// returned by AsyncBatchAnnotateFiles. The generated
// gcv.AsyncBatchAnnotateFilesOperation satisfies it.
// This interface is used for mocking operation outcomes in unit tests.
type AnnotateFilesOperation interface {
	Name() string
	Done() bool
	Wait(ctx context.Context, opts ...gax.CallOption) (*visionpb.AsyncBatchAnnotateFilesResponse, error)
}

type annotatorClient struct {
	visionClient *gcv.ImageAnnotatorClient
}

// NewImageAnnotatorClient wraps a Cloud Vision client in the
// ImageAnnotatorClient interface.
func NewImageAnnotatorClient(visionClient *gcv.ImageAnnotatorClient) ImageAnnotatorClient {
	return &annotatorClient{visionClient: visionClient}
}

func (c *annotatorClient) BatchAnnotateImages(ctx context.Context, req *visionpb.BatchAnnotateImagesRequest, opts ...gax.CallOption) (*visionpb.BatchAnnotateImagesResponse, error) {
	return c.visionClient.BatchAnnotateImages(ctx, req, opts...)
}

func (c *annotatorClient) AsyncBatchAnnotateFiles(ctx context.Context, req *visionpb.AsyncBatchAnnotateFilesRequest, opts ...gax.CallOption) (AnnotateFilesOperation, error) {
	op, err := c.visionClient.AsyncBatchAnnotateFiles(ctx, req, opts...)
	if err != nil {
		return nil, err
	}
	return op, nil
}
