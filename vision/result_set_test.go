package vision

import (
	"context"
	"reflect"
	"strings"
	"testing"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	"github.com/RogelioDavid/VisionOCR/storage"
)

// twoFileResultSet builds a result set over two output files covering pages
// 1-2 and 3-4.
func twoFileResultSet(t *testing.T) (*DocumentOCRResultSet, *fakeStorage) {
	t.Helper()

	store := &fakeStorage{
		listing: []*gcs.ObjectAttrs{
			outputAttrs("bucket", "output/output-1-to-2.json"),
			outputAttrs("bucket", "output/output-3-to-4.json"),
		},
		contents: map[string][]byte{
			"gs://bucket/output/output-1-to-2.json": annotationJSON("page one", "page two"),
			"gs://bucket/output/output-3-to-4.json": annotationJSON("page three", "page four"),
		},
	}
	template := NewDocumentOCRTemplate(&fakeAnnotator{}, store)

	resultSet, err := template.ParseOCROutputFileSet(context.Background(), storage.ForFolder("bucket", "output"))
	if err != nil {
		t.Fatalf("ParseOCROutputFileSet() error = %v", err)
	}
	return resultSet, store
}

func TestResultSetPageLookup(t *testing.T) {
	resultSet, _ := twoFileResultSet(t)

	tests := []struct {
		page int
		want string
	}{
		{page: 1, want: "page one"},
		{page: 2, want: "page two"},
		{page: 3, want: "page three"},
		{page: 4, want: "page four"},
	}
	for _, tt := range tests {
		annotation, err := resultSet.Page(context.Background(), tt.page)
		if err != nil {
			t.Fatalf("Page(%d) error = %v", tt.page, err)
		}
		if got := annotation.GetText(); got != tt.want {
			t.Errorf("Page(%d) text = %q, want %q", tt.page, got, tt.want)
		}
	}
}

func TestResultSetPageOutOfBounds(t *testing.T) {
	resultSet, _ := twoFileResultSet(t)

	for _, page := range []int{0, 5} {
		if _, err := resultSet.Page(context.Background(), page); err == nil {
			t.Errorf("Page(%d) error = nil, want out of bounds", page)
		}
	}
}

func TestResultSetFetchesLazily(t *testing.T) {
	resultSet, store := twoFileResultSet(t)

	if store.contentCalls != 0 {
		t.Fatalf("output files were fetched before any page was requested")
	}

	if _, err := resultSet.Page(context.Background(), 1); err != nil {
		t.Fatalf("Page(1) error = %v", err)
	}
	if store.contentCalls != 1 {
		t.Errorf("contentCalls = %d after one page, want 1", store.contentCalls)
	}

	// Second page of the same file comes from the cache.
	if _, err := resultSet.Page(context.Background(), 2); err != nil {
		t.Fatalf("Page(2) error = %v", err)
	}
	if store.contentCalls != 1 {
		t.Errorf("contentCalls = %d after cached page, want 1", store.contentCalls)
	}

	if _, err := resultSet.Page(context.Background(), 3); err != nil {
		t.Fatalf("Page(3) error = %v", err)
	}
	if store.contentCalls != 2 {
		t.Errorf("contentCalls = %d after second file, want 2", store.contentCalls)
	}
}

func TestResultSetAllPages(t *testing.T) {
	resultSet, _ := twoFileResultSet(t)

	var got []string
	it := resultSet.AllPages(context.Background())
	for {
		annotation, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		got = append(got, annotation.GetText())
	}

	want := []string{"page one", "page two", "page three", "page four"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("AllPages() = %v, want %v", got, want)
	}
}

func TestResultSetIteratorPropagatesParseError(t *testing.T) {
	store := &fakeStorage{
		listing: []*gcs.ObjectAttrs{
			outputAttrs("bucket", "output/output-1-to-1.json"),
			outputAttrs("bucket", "output/output-2-to-2.json"),
		},
		contents: map[string][]byte{
			"gs://bucket/output/output-1-to-1.json": annotationJSON("page one"),
			"gs://bucket/output/output-2-to-2.json": []byte("{not json"),
		},
	}
	template := NewDocumentOCRTemplate(&fakeAnnotator{}, store)

	resultSet, err := template.ParseOCROutputFileSet(context.Background(), storage.ForFolder("bucket", "output"))
	if err != nil {
		t.Fatalf("ParseOCROutputFileSet() error = %v", err)
	}

	it := resultSet.AllPages(context.Background())
	if _, err := it.Next(); err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	_, err = it.Next()
	if err == nil || err == iterator.Done {
		t.Fatalf("Next() error = %v, want a parse error", err)
	}
	if !strings.Contains(err.Error(), "failed to parse") {
		t.Errorf("Next() error = %v, want a parse error", err)
	}
}

func TestResultSetEmpty(t *testing.T) {
	template := NewDocumentOCRTemplate(&fakeAnnotator{}, &fakeStorage{})

	resultSet, err := template.ParseOCROutputFileSet(context.Background(), storage.ForFolder("bucket", "output"))
	if err != nil {
		t.Fatalf("ParseOCROutputFileSet() error = %v", err)
	}

	if got := resultSet.MinPage(); got != 0 {
		t.Errorf("MinPage() = %d, want 0", got)
	}
	if got := resultSet.MaxPage(); got != 0 {
		t.Errorf("MaxPage() = %d, want 0", got)
	}
	if _, err := resultSet.Page(context.Background(), 1); err == nil {
		t.Errorf("Page(1) error = nil, want out of bounds")
	}
	if _, err := resultSet.AllPages(context.Background()).Next(); err != iterator.Done {
		t.Errorf("Next() error = %v, want iterator.Done", err)
	}
}
