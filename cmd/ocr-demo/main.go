package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	gcs "cloud.google.com/go/storage"
	gcv "cloud.google.com/go/vision/v2/apiv1"
	firebase "firebase.google.com/go"
	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ridge/must/v2"

	"github.com/RogelioDavid/VisionOCR/pkg/env"
	"github.com/RogelioDavid/VisionOCR/storage"
	"github.com/RogelioDavid/VisionOCR/vision"
)

func main() {
	env.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gcsClient := must.OK1(gcs.NewClient(ctx))
	defer gcsClient.Close()
	visionClient := must.OK1(gcv.NewImageAnnotatorClient(ctx))
	defer visionClient.Close()

	storageClient := storage.NewClient(gcsClient)
	annotator := vision.NewImageAnnotatorClient(visionClient)

	pool := must.OK1(connectDatabase(ctx, databaseURL(ctx)))
	defer pool.Close()

	store := newJobStore(pool)
	must.OK(store.ensureSchema(ctx))

	srv := &server{
		rootCtx:        ctx,
		ocrTemplate:    vision.NewDocumentOCRTemplate(annotator, storageClient),
		visionTemplate: vision.NewCloudVisionTemplate(annotator),
		storageClient:  storageClient,
		store:          store,
		authn:          newFirebaseAuthenticator(ctx),
		uploadBucket:   env.RequiredStringVariable("GCS_UPLOAD_BUCKET"),
	}

	runServer(ctx, srv.routes(), env.IntVariable("PORT", 8080))
}

func runServer(ctx context.Context, handler http.Handler, port int) {
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: handler,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("failed to shut down server: %v", err)
		}
	}()

	log.Printf("document OCR server listening on port %d", port)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}

func connectDatabase(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database connection string: %w", err)
	}
	config.MaxConns = 10
	config.MinConns = 2

	return backoff.RetryWithData(func() (*pgxpool.Pool, error) {
		pool, err := pgxpool.NewWithConfig(ctx, config)
		if err != nil {
			return nil, fmt.Errorf("failed to create connection pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}
		return pool, nil
	}, backoff.WithMaxRetries(backoff.NewConstantBackOff(2*time.Second), 4))
}

// databaseURL resolves the connection string from the environment, falling
// back to Secret Manager.
func databaseURL(ctx context.Context) string {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}

	secretmanagerClient := must.OK1(secretmanager.NewClient(ctx))
	defer secretmanagerClient.Close()
	return secretFromGCP(ctx, secretmanagerClient, env.RequiredStringVariable("DATABASE_URL_SECRET_NAME"))
}

func secretFromGCP(ctx context.Context, secretmanagerClient *secretmanager.Client, secretName string) string {
	secretValue := must.OK1(secretmanagerClient.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: fmt.Sprintf("projects/%s/secrets/%s/versions/latest",
			env.RequiredStringVariable("GCP_PROJECT_ID"),
			secretName,
		),
	}))
	return string(secretValue.Payload.Data)
}

// newFirebaseAuthenticator returns nil when FIREBASE_PROJECT_ID is unset; the
// API is then left open.
func newFirebaseAuthenticator(ctx context.Context) *authenticator {
	projectID := os.Getenv("FIREBASE_PROJECT_ID")
	if projectID == "" {
		log.Printf("FIREBASE_PROJECT_ID is not set, API authentication is disabled")
		return nil
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID})
	if err != nil {
		log.Fatalf("error initializing app: %v", err)
	}
	firebaseClient, err := app.Auth(ctx)
	if err != nil {
		log.Fatalf("error getting Auth client: %v", err)
	}
	return newAuthenticator(firebaseClient)
}
