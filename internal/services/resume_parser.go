package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/resumeparser/internal/agent"
	"github.com/Lllllllleong/resumeparser/internal/extract"
	"github.com/Lllllllleong/resumeparser/internal/gcp"
	"github.com/Lllllllleong/resumeparser/internal/models"
)

// OutputPrefix is where parsed resumes are written, in the source bucket.
const OutputPrefix = "parsed/"

const jsonContentType = "application/json"

// ObjectStore reads source documents and writes parsed artifacts.
type ObjectStore interface {
	Download(ctx context.Context, bucket, key string) ([]byte, error)
	Upload(ctx context.Context, bucket, key string, data []byte, contentType string) error
}

// TextExtractor turns a document into plain text.
type TextExtractor interface {
	Extract(ctx context.Context, r io.Reader, format extract.Format) (extract.Result, error)
}

// ResumeAgent turns resume text into a structured resume.
type ResumeAgent interface {
	Invoke(ctx context.Context, text string) (*agent.Reply, error)
}

// RunLedger records the progress of each invocation.
type RunLedger interface {
	Start(ctx context.Context, run models.ParseRun) (string, error)
	Update(ctx context.Context, id string, u models.RunUpdate) error
}

// ParsedNotifier is told about every resume that was saved.
type ParsedNotifier interface {
	NotifyParsed(ctx context.Context, ev models.ParsedEvent) error
}

// ResumeParserConfig holds all configuration for the resume parser service.
type ResumeParserConfig struct {
	ProjectID        string
	VertexAIRegion   string
	AgentID          string
	AgentAliasID     string
	CollectionName   string
	WorkflowID       string
	WorkflowLocation string
}

// ResumeParserFunction holds the dependencies for the parsing pipeline.
// Ledger and notifier are optional.
type ResumeParserFunction struct {
	store     ObjectStore
	extractor TextExtractor
	agent     ResumeAgent
	ledger    RunLedger
	notifier  ParsedNotifier
	now       func() time.Time
	closers   []io.Closer
}

// loadResumeParserConfig loads and validates the environment for this service.
func loadResumeParserConfig() (*ResumeParserConfig, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	agentID := gcp.GetEnv("AGENT_ID", "gemini-1.5-pro")
	if agentID == "" {
		return nil, fmt.Errorf("AGENT_ID must not be empty")
	}

	return &ResumeParserConfig{
		ProjectID:        projectID,
		VertexAIRegion:   gcp.GetEnv("VERTEX_AI_REGION", "us-central1"),
		AgentID:          agentID,
		AgentAliasID:     gcp.GetEnv("AGENT_ALIAS_ID", "002"),
		CollectionName:   gcp.GetEnv("FIRESTORE_COLLECTION", "resume-parses"),
		WorkflowID:       gcp.GetEnv("WORKFLOW_ID", ""),
		WorkflowLocation: gcp.GetEnv("WORKFLOW_LOCATION", "us-central1"),
	}, nil
}

// NewResumeParser creates a ResumeParserFunction backed by Cloud Storage,
// Vertex AI and, when configured, Firestore and Cloud Workflows. Clients
// created before a failure are closed again.
func NewResumeParser(ctx context.Context) (_ *ResumeParserFunction, err error) {
	config, err := loadResumeParserConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	f := &ResumeParserFunction{
		extractor: extract.New("", slog.Default()),
		now:       time.Now,
	}
	defer func() {
		if err != nil {
			if cerr := f.Close(); cerr != nil {
				slog.Warn("Failed to release clients after initialization error.", "error", cerr)
			}
		}
	}()

	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	f.closers = append(f.closers, storageClient)
	f.store = gcp.NewGCSStore(storageClient)

	vertexClient, err := gcp.NewVertexClient(ctx, config.ProjectID, config.VertexAIRegion)
	if err != nil {
		return nil, fmt.Errorf("failed to create vertex client: %w", err)
	}
	f.closers = append(f.closers, vertexClient)

	agentClient, err := agent.NewClient(vertexClient, config.AgentID, config.AgentAliasID, slog.Default())
	if err != nil {
		return nil, fmt.Errorf("failed to create agent client: %w", err)
	}
	f.agent = agentClient

	if config.CollectionName != "" {
		firestoreClient, err := gcp.NewFirestoreClient(ctx, config.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("failed to create firestore client: %w", err)
		}
		f.closers = append(f.closers, firestoreClient)
		f.ledger = gcp.NewFirestoreLedger(firestoreClient, config.CollectionName)
	}
	if config.WorkflowID != "" {
		notifier, err := gcp.NewWorkflowNotifier(ctx, config.ProjectID, config.WorkflowLocation, config.WorkflowID)
		if err != nil {
			return nil, err
		}
		f.closers = append(f.closers, notifier)
		f.notifier = notifier
	}

	slog.Info("Resume parser initialized.",
		"agentId", config.AgentID,
		"agentAliasId", config.AgentAliasID,
		"model", gcp.ModelName(config.AgentID, config.AgentAliasID),
		"ledgerCollection", config.CollectionName,
		"workflowId", config.WorkflowID,
	)
	return f, nil
}

// Close releases the Google Cloud clients in reverse creation order. The
// function entry points keep one parser for the life of the instance and never
// call it; it runs when NewResumeParser fails part way.
func (f *ResumeParserFunction) Close() error {
	var errs []error
	for i := len(f.closers) - 1; i >= 0; i-- {
		if err := f.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	f.closers = nil
	return errors.Join(errs...)
}

// OutputKey derives the artifact key for a source file name.
func OutputKey(fileName string) string {
	return OutputPrefix + strings.TrimSuffix(fileName, path.Ext(fileName)) + ".json"
}

// Process runs the whole pipeline for one trigger payload. It never returns
// an error: every failure becomes a 500 envelope.
func (f *ResumeParserFunction) Process(ctx context.Context, payload []byte) *models.Envelope {
	body, err := f.run(ctx, payload)
	if err != nil {
		msg := fmt.Sprintf("resume parsing failed: %v", err)
		stage, _ := FailedStage(err)
		slog.Error(msg, "stage", stage.String())
		return f.failureEnvelope(msg)
	}
	return successEnvelope(body)
}

func (f *ResumeParserFunction) run(ctx context.Context, payload []byte) (*models.SuccessBody, error) {
	// --- 1. Validate the notification ---
	n, err := models.DecodeNotification(payload)
	if err != nil {
		return nil, &StageError{Stage: StageNotification, Err: err}
	}
	bucket, key, err := n.First()
	if err != nil {
		return nil, &StageError{Stage: StageNotification, Err: err}
	}
	fileName := path.Base(key)

	logCtx := slog.With("gcsBucket", bucket, "gcsObject", key)
	if len(n.Records) > 1 {
		logCtx.Warn("Event carries more than one record; only the first is processed.", "ignoredRecords", len(n.Records)-1)
	}
	logCtx.Info("Processing file.", "fileName", fileName)

	runID := f.startRun(ctx, logCtx, bucket, key)
	fail := func(stage Stage, err error) error {
		se := &StageError{Stage: stage, Err: err}
		f.updateRun(ctx, logCtx, runID, models.RunUpdate{
			Status:       models.StatusFailed,
			FailedStage:  stage.String(),
			ErrorDetails: se.Error(),
		})
		return se
	}

	// --- 2. Download the source document ---
	data, err := f.store.Download(ctx, bucket, key)
	if err != nil {
		return nil, fail(StageDownload, err)
	}
	f.updateRun(ctx, logCtx, runID, models.RunUpdate{Status: models.StatusExtracting})

	// --- 3. Extract text ---
	format, err := extract.FormatFromKey(fileName)
	if err != nil {
		return nil, fail(StageExtraction, err)
	}
	res, err := f.extractor.Extract(ctx, bytes.NewReader(data), format)
	if err != nil {
		return nil, fail(StageExtraction, err)
	}
	if strings.TrimSpace(res.Text) == "" {
		return nil, fail(StageExtraction, extract.ErrEmptyText)
	}
	textLength := utf8.RuneCountInString(res.Text)
	logCtx.Info("Extracted text.", "characters", textLength, "pages", res.Pages)
	f.updateRun(ctx, logCtx, runID, models.RunUpdate{
		Status:     models.StatusClassifying,
		PageCount:  res.Pages,
		TextLength: textLength,
	})

	// --- 4. Parse with the resume agent ---
	reply, err := f.agent.Invoke(ctx, res.Text)
	if err != nil {
		return nil, fail(StageAgentInvocation, err)
	}
	logCtx.Info("Parsed resume with agent.", "sessionId", reply.SessionID, "structured", reply.Resume.IsStructured())
	f.updateRun(ctx, logCtx, runID, models.RunUpdate{Status: models.StatusPersisting, SessionID: reply.SessionID})

	// --- 5. Save the parsed output ---
	outputKey := OutputKey(fileName)
	artifact, err := json.MarshalIndent(reply.Resume, "", "  ")
	if err != nil {
		return nil, fail(StagePersist, fmt.Errorf("failed to encode parsed resume: %w", err))
	}
	if err := f.store.Upload(ctx, bucket, outputKey, artifact, jsonContentType); err != nil {
		return nil, fail(StagePersist, err)
	}
	outputURI := fmt.Sprintf("gs://%s/%s", bucket, outputKey)
	logCtx.Info("Saved parsed resume.", "outputGcsUri", outputURI)
	f.updateRun(ctx, logCtx, runID, models.RunUpdate{Status: models.StatusCompleted, OutputKey: outputKey})

	if f.notifier != nil {
		ev := models.ParsedEvent{Bucket: bucket, InputKey: key, OutputKey: outputKey}
		if err := f.notifier.NotifyParsed(ctx, ev); err != nil {
			logCtx.Error("Failed to hand off parsed resume to workflow.", "error", err)
		}
	}

	return &models.SuccessBody{
		Message:    "Resume parsed and saved to " + outputURI,
		InputFile:  fileName,
		OutputFile: outputKey,
		TextLength: textLength,
	}, nil
}

// startRun creates the ledger record. Ledger failures never fail the parse.
func (f *ResumeParserFunction) startRun(ctx context.Context, logCtx *slog.Logger, bucket, key string) string {
	if f.ledger == nil {
		return ""
	}
	id, err := f.ledger.Start(ctx, models.ParseRun{Bucket: bucket, ObjectKey: key, Status: models.StatusDownloading})
	if err != nil {
		logCtx.Error("Failed to create parse run record.", "error", err)
		return ""
	}
	return id
}

func (f *ResumeParserFunction) updateRun(ctx context.Context, logCtx *slog.Logger, runID string, u models.RunUpdate) {
	if f.ledger == nil || runID == "" {
		return
	}
	if err := f.ledger.Update(ctx, runID, u); err != nil {
		logCtx.Error("Failed to update parse run record.", "runId", runID, "status", u.Status, "error", err)
	}
}

func successEnvelope(body *models.SuccessBody) *models.Envelope {
	encoded, _ := json.Marshal(body)
	return &models.Envelope{StatusCode: http.StatusOK, Body: string(encoded)}
}

func (f *ResumeParserFunction) failureEnvelope(msg string) *models.Envelope {
	encoded, _ := json.Marshal(models.FailureBody{
		Error:     msg,
		Timestamp: f.now().UTC().Format(time.RFC3339Nano),
	})
	return &models.Envelope{StatusCode: http.StatusInternalServerError, Body: string(encoded)}
}
