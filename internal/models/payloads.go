package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
)

// These structs define the JSON payloads that enter and leave the
// resume-parser function.

// Notification is an object-created trigger. Only Records[0] is processed.
type Notification struct {
	Records []NotificationRecord `json:"Records"`
}

// NotificationRecord is one entry of a record-list trigger.
type NotificationRecord struct {
	EventName string         `json:"eventName,omitempty"`
	Storage   *StorageRecord `json:"s3,omitempty"`
}

// StorageRecord identifies the object a record refers to.
type StorageRecord struct {
	Bucket struct {
		Name string `json:"name"`
	} `json:"bucket"`
	Object struct {
		Key string `json:"key"`
	} `json:"object"`
}

// GCSEvent is the payload of a Cloud Storage object-finalized event.
type GCSEvent struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}

var (
	ErrNoRecords     = errors.New("no storage records found in event")
	ErrInvalidRecord = errors.New("invalid storage event record")
)

// DecodeNotification accepts either a record-list payload or a Cloud Storage
// object-finalized payload. The latter becomes a single-record notification.
// Keys in record-list payloads arrive URL-encoded and are decoded here.
func DecodeNotification(data []byte) (*Notification, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("malformed event payload: %w", err)
	}

	if _, ok := probe["Records"]; ok {
		var n Notification
		if err := json.Unmarshal(data, &n); err != nil {
			return nil, fmt.Errorf("malformed event records: %w", err)
		}
		for _, rec := range n.Records {
			if rec.Storage == nil {
				continue
			}
			key, err := url.QueryUnescape(rec.Storage.Object.Key)
			if err != nil {
				return nil, fmt.Errorf("%w: undecodable object key %q: %v", ErrInvalidRecord, rec.Storage.Object.Key, err)
			}
			rec.Storage.Object.Key = key
		}
		return &n, nil
	}

	var e GCSEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("malformed storage event: %w", err)
	}
	if e.Bucket == "" && e.Name == "" {
		return &Notification{}, nil
	}
	rec := NotificationRecord{Storage: &StorageRecord{}}
	rec.Storage.Bucket.Name = e.Bucket
	rec.Storage.Object.Key = e.Name
	return &Notification{Records: []NotificationRecord{rec}}, nil
}

// First returns the bucket and key of the first record.
func (n *Notification) First() (bucket, key string, err error) {
	if n == nil || len(n.Records) == 0 {
		return "", "", ErrNoRecords
	}
	rec := n.Records[0]
	if rec.Storage == nil || rec.Storage.Bucket.Name == "" || rec.Storage.Object.Key == "" {
		return "", "", ErrInvalidRecord
	}
	return rec.Storage.Bucket.Name, rec.Storage.Object.Key, nil
}

// Envelope is what every invocation returns, success or not. Body is itself
// JSON-encoded text.
type Envelope struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

// SuccessBody is the decoded Body of a 200 envelope.
type SuccessBody struct {
	Message    string `json:"message"`
	InputFile  string `json:"input_file"`
	OutputFile string `json:"output_file"`
	TextLength int    `json:"text_length"`
}

// FailureBody is the decoded Body of a 500 envelope.
type FailureBody struct {
	Error     string `json:"error"`
	Timestamp string `json:"timestamp"`
}

// ParsedEvent is the workflow argument sent after a resume has been saved.
type ParsedEvent struct {
	Bucket    string `json:"bucket"`
	InputKey  string `json:"inputKey"`
	OutputKey string `json:"outputKey"`
}
