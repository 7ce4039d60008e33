package main

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"math"

	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/RogelioDavid/VisionOCR/pkg/utils"
)

// position is a bounding box in image coordinates.
type position struct {
	top    int32
	left   int32
	bottom int32
	right  int32
}

// renderParagraphOverlay draws a numbered box around every detected paragraph
// and returns the annotated image as PNG.
func renderParagraphOverlay(byteImage []byte, annotation *visionpb.TextAnnotation) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(byteImage))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	blocks := utils.FlatMap(annotation.GetPages(), func(page *visionpb.Page) []*visionpb.Block {
		return page.GetBlocks()
	})
	paragraphs := utils.FlatMap(blocks, func(block *visionpb.Block) []*visionpb.Paragraph {
		return block.GetParagraphs()
	})
	positions := utils.Map(paragraphs, func(paragraph *visionpb.Paragraph) position {
		return boundingPosition(paragraph.GetBoundingBox().GetVertices())
	})

	overlayFont, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("failed to parse font: %w", err)
	}

	drawingContext := gg.NewContextForImage(img)
	drawingContext.SetFontFace(truetype.NewFace(overlayFont, &truetype.Options{
		Size: 20,
		DPI:  72,
	}))
	palette := colorful.FastHappyPalette(max(len(positions), 1))

	for i, pos := range positions {
		drawingContext.SetColor(palette[i%len(palette)])
		drawingContext.SetLineWidth(3)
		drawingContext.DrawRectangle(
			float64(pos.left),
			float64(pos.top),
			float64(pos.right-pos.left),
			float64(pos.bottom-pos.top),
		)
		drawingContext.Stroke()

		// 1 pixel up on the top of the rectangle.
		drawingContext.DrawStringAnchored(
			fmt.Sprintf("%d", i+1),
			float64(pos.left),  /* =x */
			float64(pos.top)-1, /* =y */
			0,                  /* =ax (align left in x) */
			0,                  /* =ay (align bottom in y) */
		)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, drawingContext.Image()); err != nil {
		return nil, fmt.Errorf("failed to encode overlay image: %w", err)
	}
	return buf.Bytes(), nil
}

func boundingPosition(vertices []*visionpb.Vertex) position {
	return utils.Reduce(vertices, func(combined position, vertex *visionpb.Vertex) position {
		return position{
			top:    min(combined.top, vertex.GetY()),
			left:   min(combined.left, vertex.GetX()),
			bottom: max(combined.bottom, vertex.GetY()),
			right:  max(combined.right, vertex.GetX()),
		}
	}, position{
		top:    math.MaxInt32,
		left:   math.MaxInt32,
		bottom: 0,
		right:  0,
	})
}
