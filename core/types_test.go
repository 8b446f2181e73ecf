package core

import (
	"encoding/json"
	"testing"
)

func TestJobUnmarshalSuccess(t *testing.T) {
	data := `{
		"job_id": "img-123",
		"status": "success",
		"progress": 1,
		"created": 1700000000,
		"result": {"data": [
			{"index": 0, "url": "https://cdn.example/0.png"},
			{"index": 1, "url": "https://cdn.example/1.png"}
		]},
		"error": {"message": "ignored"}
	}`

	var job ImageJob
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if job.ID != "img-123" {
		t.Errorf("ID = %q, want img-123", job.ID)
	}
	if len(job.Artifacts()) != 2 {
		t.Fatalf("len(Artifacts()) = %d, want 2", len(job.Artifacts()))
	}
	if job.Error != nil {
		t.Errorf("Error = %v, want nil for a successful job", job.Error)
	}
	first, ok := job.FirstArtifact()
	if !ok || first.URL != "https://cdn.example/0.png" {
		t.Errorf("FirstArtifact() = %+v, %v", first, ok)
	}
	if got := ImageURLs(&job); len(got) != 2 {
		t.Errorf("ImageURLs() = %v", got)
	}
	if job.CreatedAt().Unix() != 1700000000 {
		t.Errorf("CreatedAt() = %v", job.CreatedAt())
	}
}

func TestJobUnmarshalFailed(t *testing.T) {
	data := `{"job_id":"v-1","status":"failed","result":{"data":[{"url":"x"}]},"error":{"code":"quota"}}`

	var job VideoJob
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if job.Result != nil {
		t.Errorf("Result = %+v, want nil for a failed job", job.Result)
	}
	if job.Error == nil {
		t.Error("Error should be set for a failed job")
	}
}

func TestJobUnmarshalFailedWithoutError(t *testing.T) {
	var job ImageJob
	if err := json.Unmarshal([]byte(`{"job_id":"j","status":"failed"}`), &job); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if job.Error != "unknown error" {
		t.Errorf("Error = %v, want unknown error", job.Error)
	}
}

func TestJobUnmarshalProcessing(t *testing.T) {
	var job ImageJob
	data := `{"job_id":"j","status":"processing","progress":0.4,"result":{"data":[]},"error":"x"}`
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if job.Result != nil || job.Error != nil {
		t.Errorf("processing job should have neither result nor error, got %+v / %v", job.Result, job.Error)
	}
	if job.Progress != 0.4 {
		t.Errorf("Progress = %v, want 0.4", job.Progress)
	}
	if job.Status.Terminal() {
		t.Error("processing should not be terminal")
	}
}

func TestJobUnmarshalSuccessWithoutResult(t *testing.T) {
	var job ImageJob
	if err := json.Unmarshal([]byte(`{"job_id":"j","status":"success"}`), &job); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if job.Result == nil {
		t.Fatal("successful job should always carry a result")
	}
	if _, ok := job.FirstArtifact(); ok {
		t.Error("empty result should have no first artifact")
	}
}

func TestJobUnmarshalUnknownStatus(t *testing.T) {
	var job ImageJob
	if err := json.Unmarshal([]byte(`{"job_id":"j","status":"queued"}`), &job); err == nil {
		t.Error("unknown status should fail to decode")
	}
}

func TestStatusTerminal(t *testing.T) {
	tests := []struct {
		status   Status
		valid    bool
		terminal bool
	}{
		{StatusProcessing, true, false},
		{StatusSuccess, true, true},
		{StatusFailed, true, true},
		{Status("pending"), false, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if tt.status.Valid() != tt.valid {
				t.Errorf("Valid() = %v, want %v", tt.status.Valid(), tt.valid)
			}
			if tt.status.Terminal() != tt.terminal {
				t.Errorf("Terminal() = %v, want %v", tt.status.Terminal(), tt.terminal)
			}
		})
	}
}

func TestResponseEnvelope(t *testing.T) {
	data := `{"code":0,"request_id":"req-7","message":"ok","data":{"job_id":"j","status":"processing"}}`

	var resp Response[ImageJob]
	if err := json.Unmarshal([]byte(data), &resp); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if resp.RequestID != "req-7" {
		t.Errorf("RequestID = %q, want req-7", resp.RequestID)
	}
	if resp.Data.ID != "j" || resp.Data.Status != StatusProcessing {
		t.Errorf("Data = %+v", resp.Data)
	}
}

func TestVideoURLsSkipsEmpty(t *testing.T) {
	job := &VideoJob{
		Status: StatusSuccess,
		Result: &Result[VideoResult]{Data: []VideoResult{{URL: "a"}, {}, {URL: "b"}}},
	}
	if got := VideoURLs(job); len(got) != 2 {
		t.Errorf("VideoURLs() = %v, want 2 entries", got)
	}
}

func TestArtifactsNilJob(t *testing.T) {
	var job *ImageJob
	if job.Artifacts() != nil {
		t.Error("nil job should have no artifacts")
	}
}
