package vision

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"google.golang.org/grpc/status"

	"github.com/RogelioDavid/VisionOCR/pkg/utils"
)

// CloudVisionTemplate runs image analysis on single images held in memory.
type CloudVisionTemplate struct {
	annotator ImageAnnotatorClient
}

// NewCloudVisionTemplate returns a template annotating images through
// annotator.
func NewCloudVisionTemplate(annotator ImageAnnotatorClient) *CloudVisionTemplate {
	return &CloudVisionTemplate{annotator: annotator}
}

// AnnotateImage analyzes image with the given feature types and returns the
// response of the Vision API.
func (t *CloudVisionTemplate) AnnotateImage(ctx context.Context, image []byte, featureTypes ...visionpb.Feature_Type) (*visionpb.AnnotateImageResponse, error) {
	if len(image) == 0 {
		return nil, errors.New("no image content provided")
	}
	if len(featureTypes) == 0 {
		return nil, errors.New("at least one feature type is required")
	}

	features := utils.Map(featureTypes, func(featureType visionpb.Feature_Type) *visionpb.Feature {
		return &visionpb.Feature{Type: featureType}
	})
	response, err := t.annotator.BatchAnnotateImages(ctx, &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{
			{
				Image:    &visionpb.Image{Content: image},
				Features: features,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to annotate image: %w", err)
	}

	if len(response.GetResponses()) == 0 {
		return nil, errors.New("empty response received from the Vision API")
	}
	return response.GetResponses()[0], nil
}

// ExtractTextFromImage runs text detection on image and returns the detected
// text as a single string.
func (t *CloudVisionTemplate) ExtractTextFromImage(ctx context.Context, image []byte) (string, error) {
	response, err := t.AnnotateImage(ctx, image, visionpb.Feature_TEXT_DETECTION)
	if err != nil {
		return "", err
	}

	text := response.GetFullTextAnnotation().GetText()
	if text == "" && response.GetError().GetCode() != 0 {
		return "", fmt.Errorf("failed to extract text from image: %w", status.ErrorProto(response.GetError()))
	}
	return text, nil
}
