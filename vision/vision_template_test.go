package vision

import (
	"context"
	"strings"
	"testing"

	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	rpcstatus "google.golang.org/genproto/googleapis/rpc/status"
	"google.golang.org/grpc/codes"
)

func TestAnnotateImageBuildsRequest(t *testing.T) {
	annotator := &fakeAnnotator{
		batchResp: &visionpb.BatchAnnotateImagesResponse{
			Responses: []*visionpb.AnnotateImageResponse{
				{FullTextAnnotation: &visionpb.TextAnnotation{Text: "hello"}},
			},
		},
	}
	template := NewCloudVisionTemplate(annotator)

	response, err := template.AnnotateImage(context.Background(), []byte("image-bytes"),
		visionpb.Feature_LABEL_DETECTION, visionpb.Feature_DOCUMENT_TEXT_DETECTION)
	if err != nil {
		t.Fatalf("AnnotateImage() error = %v", err)
	}
	if got := response.GetFullTextAnnotation().GetText(); got != "hello" {
		t.Errorf("Text = %q, want %q", got, "hello")
	}

	if len(annotator.lastBatchReq.GetRequests()) != 1 {
		t.Fatalf("submitted %d image requests, want 1", len(annotator.lastBatchReq.GetRequests()))
	}
	req := annotator.lastBatchReq.GetRequests()[0]
	if got := string(req.GetImage().GetContent()); got != "image-bytes" {
		t.Errorf("request image content = %q, want %q", got, "image-bytes")
	}
	if len(req.GetFeatures()) != 2 ||
		req.GetFeatures()[0].GetType() != visionpb.Feature_LABEL_DETECTION ||
		req.GetFeatures()[1].GetType() != visionpb.Feature_DOCUMENT_TEXT_DETECTION {
		t.Errorf("request features = %v, want the requested feature types", req.GetFeatures())
	}
}

func TestAnnotateImageValidatesArguments(t *testing.T) {
	annotator := &fakeAnnotator{}
	template := NewCloudVisionTemplate(annotator)

	if _, err := template.AnnotateImage(context.Background(), nil, visionpb.Feature_LABEL_DETECTION); err == nil {
		t.Errorf("AnnotateImage() error = nil for empty image")
	}
	if _, err := template.AnnotateImage(context.Background(), []byte("image-bytes")); err == nil {
		t.Errorf("AnnotateImage() error = nil for missing feature types")
	}
	if annotator.batchCalls != 0 {
		t.Errorf("annotation service was contacted for invalid arguments")
	}
}

func TestAnnotateImageEmptyResponse(t *testing.T) {
	annotator := &fakeAnnotator{batchResp: &visionpb.BatchAnnotateImagesResponse{}}
	template := NewCloudVisionTemplate(annotator)

	_, err := template.AnnotateImage(context.Background(), []byte("image-bytes"), visionpb.Feature_LABEL_DETECTION)
	if err == nil || !strings.Contains(err.Error(), "empty response") {
		t.Fatalf("AnnotateImage() error = %v, want an empty-response error", err)
	}
}

func TestExtractTextFromImage(t *testing.T) {
	annotator := &fakeAnnotator{
		batchResp: &visionpb.BatchAnnotateImagesResponse{
			Responses: []*visionpb.AnnotateImageResponse{
				{FullTextAnnotation: &visionpb.TextAnnotation{Text: "The quick brown fox"}},
			},
		},
	}
	template := NewCloudVisionTemplate(annotator)

	text, err := template.ExtractTextFromImage(context.Background(), []byte("image-bytes"))
	if err != nil {
		t.Fatalf("ExtractTextFromImage() error = %v", err)
	}
	if text != "The quick brown fox" {
		t.Errorf("ExtractTextFromImage() = %q, want %q", text, "The quick brown fox")
	}

	req := annotator.lastBatchReq.GetRequests()[0]
	if len(req.GetFeatures()) != 1 || req.GetFeatures()[0].GetType() != visionpb.Feature_TEXT_DETECTION {
		t.Errorf("request features = %v, want text detection", req.GetFeatures())
	}
}

func TestExtractTextFromImageErrorStatus(t *testing.T) {
	annotator := &fakeAnnotator{
		batchResp: &visionpb.BatchAnnotateImagesResponse{
			Responses: []*visionpb.AnnotateImageResponse{
				{Error: &rpcstatus.Status{Code: int32(codes.Unavailable), Message: "OCR backend unavailable"}},
			},
		},
	}
	template := NewCloudVisionTemplate(annotator)

	_, err := template.ExtractTextFromImage(context.Background(), []byte("image-bytes"))
	if err == nil || !strings.Contains(err.Error(), "OCR backend unavailable") {
		t.Fatalf("ExtractTextFromImage() error = %v, want the response error", err)
	}
}
