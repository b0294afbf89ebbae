// Package extract turns uploaded resume documents into plain text.
package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"
)

// Format is a supported document type, named after its file extension.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrEmptyText         = errors.New("no text extracted from file")
)

// Error reports a failed extraction for a given format.
type Error struct {
	Format Format
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s text extraction failed: %v", strings.ToUpper(string(e.Format)), e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Result is the text pulled out of a document. Pages is only known for PDFs
// that pass structural validation; it is zero otherwise.
type Result struct {
	Text  string
	Pages int
}

// FormatFromKey picks the format from an object key's extension, ignoring case.
func FormatFromKey(key string) (Format, error) {
	switch strings.ToLower(path.Ext(key)) {
	case ".pdf":
		return FormatPDF, nil
	case ".docx":
		return FormatDOCX, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, path.Base(key))
	}
}

// Extractor spools each document to its own temporary file and runs the
// format-specific extraction over it. It is safe for concurrent use.
type Extractor struct {
	tempDir string
	log     *slog.Logger
}

// New returns an Extractor writing transient files under tempDir, or the
// system temp directory when tempDir is empty.
func New(tempDir string, log *slog.Logger) *Extractor {
	if log == nil {
		log = slog.Default()
	}
	return &Extractor{tempDir: tempDir, log: log}
}

// Extract reads r fully and returns its trimmed text. Empty output is an error.
func (e *Extractor) Extract(ctx context.Context, r io.Reader, format Format) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, &Error{Format: format, Err: err}
	}

	var extractFn func(string) (Result, error)
	switch format {
	case FormatPDF:
		extractFn = e.extractPDF
	case FormatDOCX:
		extractFn = extractDOCX
	default:
		return Result{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	res, err := e.withTempFile(r, format, extractFn)
	if err != nil {
		return Result{}, &Error{Format: format, Err: err}
	}
	res.Text = strings.TrimSpace(res.Text)
	if res.Text == "" {
		return Result{}, &Error{Format: format, Err: ErrEmptyText}
	}
	return res, nil
}

// withTempFile writes r to a uniquely named file, hands its path to fn and
// removes the file whether or not fn succeeds.
func (e *Extractor) withTempFile(r io.Reader, format Format, fn func(string) (Result, error)) (Result, error) {
	tmp, err := os.CreateTemp(e.tempDir, "resume-*."+string(format))
	if err != nil {
		return Result{}, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err := os.Remove(tmpPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			e.log.Warn("Failed to remove temp file.", "path", tmpPath, "error", err)
		}
	}()

	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		return Result{}, fmt.Errorf("failed to write temp file %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return Result{}, fmt.Errorf("failed to finalize temp file %s: %w", tmpPath, err)
	}
	return fn(tmpPath)
}
