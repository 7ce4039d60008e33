package vision

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"

	gcs "cloud.google.com/go/storage"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"google.golang.org/api/iterator"

	"github.com/RogelioDavid/VisionOCR/pkg/utils"
	"github.com/RogelioDavid/VisionOCR/storage"
)

// outputPagePattern matches the names the Vision API gives OCR output files,
// such as output-1-to-1.json, capturing the page range.
var outputPagePattern = regexp.MustCompile(`output-(\d+)-to-(\d+)\.json`)

// unknownPage is the page range assigned to output files whose name does not
// match outputPagePattern. They sort before all matching files.
const unknownPage = -1

// pageRange is one OCR output file covering the document pages startPage
// through endPage.
type pageRange struct {
	blob      *gcs.ObjectAttrs
	startPage int
	endPage   int

	// parsed at most once, on first access
	pages []*visionpb.TextAnnotation
}

func newPageRange(blob *gcs.ObjectAttrs) *pageRange {
	match := outputPagePattern.FindStringSubmatch(blob.Name)
	if match == nil {
		return &pageRange{blob: blob, startPage: unknownPage, endPage: unknownPage}
	}

	start, _ := strconv.Atoi(match[1])
	end, _ := strconv.Atoi(match[2])
	return &pageRange{blob: blob, startPage: start, endPage: end}
}

func (r *pageRange) annotations(ctx context.Context, storageClient storage.Client) ([]*visionpb.TextAnnotation, error) {
	if r.pages != nil {
		return r.pages, nil
	}

	loc := storage.ForFile(r.blob.Bucket, r.blob.Name)
	content, err := storageClient.Content(ctx, loc)
	if err != nil {
		return nil, fmt.Errorf("failed to read OCR output file %s: %w", loc, err)
	}
	response, err := parseAnnotateFileResponse(content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse OCR output file %s: %w", loc, err)
	}

	r.pages = utils.Map(response.GetResponses(), func(page *visionpb.AnnotateImageResponse) *visionpb.TextAnnotation {
		return page.GetFullTextAnnotation()
	})
	return r.pages, nil
}

// DocumentOCRResultSet is the set of OCR output files produced for a single
// document, ordered by ascending page range. Output file contents are fetched
// and parsed lazily and cached per file.
//
// A result set is not safe for concurrent use.
type DocumentOCRResultSet struct {
	ranges        []*pageRange
	storageClient storage.Client
}

// MinPage returns the lowest page number covered by the result set. It is
// negative if the set contains output files without a page range in their
// name, and zero if the set is empty.
func (rs *DocumentOCRResultSet) MinPage() int {
	if len(rs.ranges) == 0 {
		return 0
	}
	return rs.ranges[0].startPage
}

// MaxPage returns the highest page number covered by the result set, or zero
// if the set is empty.
func (rs *DocumentOCRResultSet) MaxPage() int {
	if len(rs.ranges) == 0 {
		return 0
	}
	return rs.ranges[len(rs.ranges)-1].endPage
}

// Page returns the OCR results of a single document page. Only the output
// file covering that page is fetched and parsed.
func (rs *DocumentOCRResultSet) Page(ctx context.Context, pageNumber int) (*visionpb.TextAnnotation, error) {
	r := rs.floorRange(pageNumber)
	if r == nil || pageNumber > r.endPage {
		return nil, fmt.Errorf("page %d is not covered by the result set [%d, %d]", pageNumber, rs.MinPage(), rs.MaxPage())
	}

	pages, err := r.annotations(ctx, rs.storageClient)
	if err != nil {
		return nil, err
	}

	offset := pageNumber - r.startPage
	if offset >= len(pages) {
		return nil, fmt.Errorf("OCR output file %s contains %d pages, expected at least %d", r.blob.Name, len(pages), offset+1)
	}
	return pages[offset], nil
}

// floorRange returns the last range starting at or below pageNumber, or nil
// if every range starts above it.
func (rs *DocumentOCRResultSet) floorRange(pageNumber int) *pageRange {
	idx := sort.Search(len(rs.ranges), func(i int) bool {
		return rs.ranges[i].startPage > pageNumber
	}) - 1
	if idx < 0 {
		return nil
	}
	return rs.ranges[idx]
}

// AllPages returns an iterator over the OCR results of every page in the
// result set, in page order.
func (rs *DocumentOCRResultSet) AllPages(ctx context.Context) *PageIterator {
	return &PageIterator{ctx: ctx, resultSet: rs}
}

// PageIterator iterates over the pages of a DocumentOCRResultSet. Output
// files are fetched one at a time as the iteration reaches them.
type PageIterator struct {
	ctx       context.Context
	resultSet *DocumentOCRResultSet
	rangeIdx  int
	offset    int
}

// Next returns the next page of the result set. It returns iterator.Done
// when no pages remain.
func (it *PageIterator) Next() (*visionpb.TextAnnotation, error) {
	for it.rangeIdx < len(it.resultSet.ranges) {
		pages, err := it.resultSet.ranges[it.rangeIdx].annotations(it.ctx, it.resultSet.storageClient)
		if err != nil {
			return nil, err
		}
		if it.offset < len(pages) {
			page := pages[it.offset]
			it.offset++
			return page, nil
		}
		it.rangeIdx++
		it.offset = 0
	}
	return nil, iterator.Done
}
