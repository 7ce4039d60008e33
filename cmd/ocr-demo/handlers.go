package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/RogelioDavid/VisionOCR/pkg/env"
	yaHttp "github.com/RogelioDavid/VisionOCR/pkg/http"
	"github.com/RogelioDavid/VisionOCR/storage"
	"github.com/RogelioDavid/VisionOCR/vision"
)

// uploadSizeLimit caps uploads at the Vision API image size limit.
// Ref: https://cloud.google.com/vision/quotas#limits
const uploadSizeLimit = 20 * 1024 * 1024

type server struct {
	// rootCtx outlives individual requests and governs the operation
	// watchers spawned for submitted jobs.
	rootCtx context.Context

	ocrTemplate    *vision.DocumentOCRTemplate
	visionTemplate *vision.CloudVisionTemplate
	storageClient  storage.Client
	store          *jobStore
	authn          *authenticator // nil when authentication is disabled

	uploadBucket string
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{env.StringVariable("ALLOWED_ORIGIN", "*")},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(api chi.Router) {
		if s.authn != nil {
			api.Use(s.authn.middleware)
		}
		api.Post("/ocr/jobs", s.handleSubmitJob)
		api.Get("/ocr/jobs", s.handleListJobs)
		api.Get("/ocr/jobs/{id}", s.handleGetJob)
		api.Get("/ocr/jobs/{id}/pages/{page}", s.handleGetJobPage)
		api.Post("/vision/text", s.handleExtractText)
		api.Post("/vision/annotate", s.handleAnnotateImage)
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "web/index.html")
	})
	r.Get("/assets/*", yaHttp.HandleFileServer("web"))

	return r
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type submitJobRequest struct {
	Document     string `json:"document"`
	OutputPrefix string `json:"output_prefix"`
}

// handleSubmitJob starts OCR on a document referenced by gs:// URI or
// uploaded as multipart form data, records the job, and returns it without
// waiting for the operation to finish.
func (s *server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	var document, outputPrefix storage.Location
	var err error
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		document, outputPrefix, err = s.saveUpload(r)
	} else {
		document, outputPrefix, err = s.parseSubmitRequest(r)
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	// The watcher outlives the request, so the operation runs on rootCtx.
	op, err := s.ocrTemplate.RunOCRForDocument(s.rootCtx, document, outputPrefix)
	if err != nil {
		writeError(w, statusFromError(err), err)
		return
	}

	job, err := s.store.create(r.Context(), userID(r.Context()), document.URI(), outputPrefix.URI(), op.Name())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	go s.watchJob(job.ID, op)

	writeJSON(w, http.StatusAccepted, job)
}

func (s *server) parseSubmitRequest(r *http.Request) (document, outputPrefix storage.Location, err error) {
	var req submitJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return storage.Location{}, storage.Location{}, fmt.Errorf("failed to decode request body: %w", err)
	}

	document, err = storage.ParseLocation(req.Document)
	if err != nil {
		return storage.Location{}, storage.Location{}, err
	}
	if req.OutputPrefix == "" {
		return document, storage.ForFolder(s.uploadBucket, "results/"+uuid.NewString()), nil
	}
	outputPrefix, err = storage.ParseLocation(req.OutputPrefix)
	return document, outputPrefix, err
}

// saveUpload stores the uploaded document in the upload bucket and picks an
// output prefix next to it.
func (s *server) saveUpload(r *http.Request) (document, outputPrefix storage.Location, err error) {
	if err := r.ParseMultipartForm(uploadSizeLimit); err != nil {
		return storage.Location{}, storage.Location{}, fmt.Errorf("failed to parse multipart form: %w", err)
	}
	file, header, err := r.FormFile("document")
	if err != nil {
		return storage.Location{}, storage.Location{}, fmt.Errorf("missing document file: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return storage.Location{}, storage.Location{}, fmt.Errorf("failed to read upload: %w", err)
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = mime.TypeByExtension(path.Ext(header.Filename))
	}

	jobPrefix := uuid.NewString()
	document = storage.ForFile(s.uploadBucket, "uploads/"+jobPrefix+"/"+path.Base(header.Filename))
	if err := s.storageClient.SaveBytes(r.Context(), document, data, contentType); err != nil {
		return storage.Location{}, storage.Location{}, err
	}
	return document, storage.ForFolder(s.uploadBucket, "results/"+jobPrefix), nil
}

func (s *server) watchJob(jobID string, op *vision.DocumentOCROperation) {
	resultSet, err := op.Wait(s.rootCtx)
	if err != nil {
		log.Printf("OCR job %s failed: %v", jobID, err)
		if err := s.store.markFailed(s.rootCtx, jobID, err.Error()); err != nil {
			log.Printf("failed to record failure of OCR job %s: %v", jobID, err)
		}
		return
	}

	log.Printf("OCR job %s finished, pages %d to %d", jobID, resultSet.MinPage(), resultSet.MaxPage())
	if err := s.store.markSucceeded(s.rootCtx, jobID, resultSet.MinPage(), resultSet.MaxPage()); err != nil {
		log.Printf("failed to record success of OCR job %s: %v", jobID, err)
	}
}

func (s *server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.store.list(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

func (s *server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.store.get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, errJobNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// handleGetJobPage returns the OCR text of a single page of a finished job.
func (s *server) handleGetJobPage(w http.ResponseWriter, r *http.Request) {
	job, err := s.store.get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, errJobNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if job.Status != statusSucceeded {
		writeError(w, http.StatusConflict, fmt.Errorf("OCR job %s is %s", job.ID, job.Status))
		return
	}

	pageNumber, err := strconv.Atoi(chi.URLParam(r, "page"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid page number: %w", err))
		return
	}

	outputPrefix, err := storage.ParseLocation(job.OutputPrefix)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	resultSet, err := s.ocrTemplate.ParseOCROutputFileSet(r.Context(), outputPrefix)
	if err != nil {
		writeError(w, statusFromError(err), err)
		return
	}
	annotation, err := resultSet.Page(r.Context(), pageNumber)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"job_id": job.ID,
		"page":   pageNumber,
		"text":   annotation.GetText(),
	})
}

func (s *server) handleExtractText(w http.ResponseWriter, r *http.Request) {
	image, err := readImage(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	text, err := s.visionTemplate.ExtractTextFromImage(r.Context(), image)
	if err != nil {
		writeError(w, statusFromError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"text": text})
}

// handleAnnotateImage runs document text detection on an image and responds
// with a PNG marking every detected paragraph.
func (s *server) handleAnnotateImage(w http.ResponseWriter, r *http.Request) {
	image, err := readImage(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	response, err := s.visionTemplate.AnnotateImage(r.Context(), image, visionpb.Feature_DOCUMENT_TEXT_DETECTION)
	if err != nil {
		writeError(w, statusFromError(err), err)
		return
	}

	overlay, err := renderParagraphOverlay(image, response.GetFullTextAnnotation())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(overlay); err != nil {
		log.Printf("failed to write overlay response: %v", err)
	}
}

// readImage accepts an image either as the raw request body or as the
// "image" field of a multipart form.
func readImage(r *http.Request) ([]byte, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(uploadSizeLimit); err != nil {
			return nil, fmt.Errorf("failed to parse multipart form: %w", err)
		}
		file, _, err := r.FormFile("image")
		if err != nil {
			return nil, fmt.Errorf("missing image file: %w", err)
		}
		defer file.Close()
		return io.ReadAll(file)
	}
	return io.ReadAll(io.LimitReader(r.Body, uploadSizeLimit))
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, statusCode int, err error) {
	writeJSON(w, statusCode, map[string]string{"error": err.Error()})
}

// statusFromError maps template and Vision API errors to HTTP status codes.
func statusFromError(err error) int {
	switch {
	case errors.Is(err, vision.ErrNotFile), errors.Is(err, vision.ErrDocumentNotFound):
		return http.StatusBadRequest
	case errors.Is(err, gcs.ErrObjectNotExist):
		return http.StatusNotFound
	}

	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.InvalidArgument:
			return http.StatusBadRequest
		case codes.NotFound:
			return http.StatusNotFound
		case codes.PermissionDenied:
			return http.StatusForbidden
		case codes.Unauthenticated:
			return http.StatusUnauthorized
		case codes.ResourceExhausted:
			return http.StatusTooManyRequests
		}
	}
	return http.StatusInternalServerError
}
