package core

import (
	"encoding/json"
	"fmt"
	"time"
)

// Status is the lifecycle state of a generation job.
type Status string

// Job states. The set is closed.
const (
	StatusProcessing Status = "processing"
	StatusSuccess    Status = "success"
	StatusFailed     Status = "failed"
)

// Valid reports whether s is one of the known job states.
func (s Status) Valid() bool {
	switch s {
	case StatusProcessing, StatusSuccess, StatusFailed:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transition can occur from s.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// ImageResult describes one generated image.
type ImageResult struct {
	Index    int            `json:"index"`
	URL      string         `json:"url,omitempty"`
	B64JSON  string         `json:"b64_json,omitempty"` // includes the data URL prefix
	Metadata map[string]any `json:"metadata,omitempty"`
}

// VideoResult describes one generated video.
type VideoResult struct {
	Index    int            `json:"index"`
	URL      string         `json:"url,omitempty"`
	Duration int            `json:"duration,omitempty"` // seconds
	Fps      int            `json:"fps,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Result holds the ordered artifacts of a successful job.
type Result[T any] struct {
	Data []T `json:"data"`
}

// Job is a server-tracked unit of generation work.
//
// Result is set if and only if Status is StatusSuccess; Error is set if and
// only if Status is StatusFailed. Progress is advisory and may move backwards.
type Job[T any] struct {
	ID        string     `json:"job_id"`
	Status    Status     `json:"status"`
	Progress  float64    `json:"progress"`
	Created   int64      `json:"created"`
	Result    *Result[T] `json:"result,omitempty"`
	Error     any        `json:"error,omitempty"`
	RequestID string     `json:"-"`
}

// wireJob has Job's fields without its methods.
type wireJob[T any] Job[T]

// UnmarshalJSON decodes a job and enforces the result/error invariant.
func (j *Job[T]) UnmarshalJSON(data []byte) error {
	var w wireJob[T]
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if !w.Status.Valid() {
		return fmt.Errorf("unknown job status %q", w.Status)
	}
	if w.Status != StatusSuccess {
		w.Result = nil
	}
	if w.Status != StatusFailed {
		w.Error = nil
	} else if w.Error == nil {
		w.Error = "unknown error"
	}
	if w.Status == StatusSuccess && w.Result == nil {
		w.Result = &Result[T]{}
	}
	*j = Job[T](w)
	return nil
}

// Artifacts returns the result entries, or nil unless the job succeeded.
func (j *Job[T]) Artifacts() []T {
	if j == nil || j.Result == nil {
		return nil
	}
	return j.Result.Data
}

// FirstArtifact returns the first result entry.
func (j *Job[T]) FirstArtifact() (T, bool) {
	var zero T
	items := j.Artifacts()
	if len(items) == 0 {
		return zero, false
	}
	return items[0], true
}

// CreatedAt returns the creation timestamp as a time.
func (j *Job[T]) CreatedAt() time.Time {
	return time.Unix(j.Created, 0)
}

// ImageJob is a job producing images.
type ImageJob = Job[ImageResult]

// VideoJob is a job producing videos.
type VideoJob = Job[VideoResult]

// ImageURLs returns the URLs of all images in the job result.
func ImageURLs(j *ImageJob) []string {
	urls := make([]string, 0, len(j.Artifacts()))
	for _, img := range j.Artifacts() {
		if img.URL != "" {
			urls = append(urls, img.URL)
		}
	}
	return urls
}

// VideoURLs returns the URLs of all videos in the job result.
func VideoURLs(j *VideoJob) []string {
	urls := make([]string, 0, len(j.Artifacts()))
	for _, v := range j.Artifacts() {
		if v.URL != "" {
			urls = append(urls, v.URL)
		}
	}
	return urls
}

// Response is the service's success envelope.
type Response[T any] struct {
	Code      int    `json:"code"`
	Data      T      `json:"data"`
	RequestID string `json:"request_id"`
	Message   string `json:"message"`
}

// StreamEventType is the kind of a stream event. The set is closed.
type StreamEventType string

// Stream event types.
const (
	EventProgress      StreamEventType = "progress"
	EventPartialResult StreamEventType = "partial_result"
	EventError         StreamEventType = "error"
	EventDone          StreamEventType = "done"
)

func (t StreamEventType) valid() bool {
	switch t {
	case EventProgress, EventPartialResult, EventError, EventDone:
		return true
	default:
		return false
	}
}

// StreamEvent is one decoded event of a typed job stream.
// Data is set for partial results, Error for error events.
type StreamEvent[T any] struct {
	Type  StreamEventType
	Data  *T
	Error any
}

// IsDone reports whether the event marks the end of the job stream.
func (e *StreamEvent[T]) IsDone() bool {
	return e.Type == EventDone
}

// IsError reports whether the event carries a server error.
func (e *StreamEvent[T]) IsError() bool {
	return e.Type == EventError
}

// TextChunk is one decoded object of a completion-style text stream.
type TextChunk = map[string]any
