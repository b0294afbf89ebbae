package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/resumeparser/internal/services"
	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// maxRequestBytes bounds the HTTP trigger body; notifications are tiny.
const maxRequestBytes = 1 << 20

var (
	parserInstance *services.ResumeParserFunction
	once           sync.Once
	initErr        error
)

func init() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// "ParseResume" is wired to the bucket's object-finalized trigger.
	functions.CloudEvent("ParseResume", parseResume)
	// "HandleParseResume" takes the same payload over HTTP and answers with the envelope.
	functions.HTTP("HandleParseResume", handleParseResume)
}

// main is required by the Go Functions Framework.
func main() {}

func initParser() error {
	once.Do(func() {
		parserInstance, initErr = services.NewResumeParser(context.Background())
	})
	return initErr
}

// parseResume is the CloudEvent entry point. Pipeline failures are logged in
// the envelope and never returned, so the event is not redelivered.
func parseResume(ctx context.Context, e cloudevents.Event) error {
	if err := initParser(); err != nil {
		slog.Error("Critical error during function initialization", "error", err)
		return err
	}

	envelope := parserInstance.Process(ctx, e.Data())
	slog.Info("Invocation finished.",
		"eventId", e.ID(),
		"eventType", e.Type(),
		"statusCode", envelope.StatusCode,
		"body", envelope.Body,
	)
	return nil
}

// handleParseResume is the HTTP entry point.
func handleParseResume(w http.ResponseWriter, r *http.Request) {
	if err := initParser(); err != nil {
		slog.Error("Critical: resume parser initialization failed", "error", err)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		slog.Warn("Could not read request body", "error", err)
		http.Error(w, "Bad Request: could not read body", http.StatusBadRequest)
		return
	}

	envelope := parserInstance.Process(r.Context(), payload)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(envelope.StatusCode)
	if err := json.NewEncoder(w).Encode(envelope); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}
