package onething

import (
	"encoding/json"
	"net/url"
)

// SyncMode selects whether the service answers with the finished job or a
// job id to poll.
type SyncMode string

const (
	SyncModeSync  SyncMode = "sync"
	SyncModeAsync SyncMode = "async"
)

// ResponseFormat selects how image artifacts are returned.
type ResponseFormat string

const (
	ResponseFormatURL     ResponseFormat = "url"
	ResponseFormatB64JSON ResponseFormat = "b64_json"
)

// ImageJobType is the kind of image job.
type ImageJobType string

const (
	ImageJobGeneration ImageJobType = "generation"
	ImageJobEdit       ImageJobType = "edit"
	ImageJobVariation  ImageJobType = "variation"
)

// VideoJobType is the kind of video job.
type VideoJobType string

const (
	VideoJobText2Video  VideoJobType = "text2video"
	VideoJobImage2Video VideoJobType = "image2video"
)

// TextJobType is the kind of text job.
type TextJobType string

const (
	TextJobChatCompletions TextJobType = "chat/completions"
	TextJobCompletions     TextJobType = "completions"
	TextJobResponses       TextJobType = "responses"
)

// ImageStyle is a rendering style hint.
type ImageStyle string

const (
	ImageStyleVivid   ImageStyle = "vivid"
	ImageStyleNatural ImageStyle = "natural"
)

// Output count limits.
const (
	MaxImageN = 10
	MaxVideoN = 4
)

// InputImage is a reference image given by URL or base64 data URL.
type InputImage struct {
	URL     string `json:"url,omitempty"`
	B64JSON string `json:"b64_json,omitempty"`
}

// InputVideo is a reference video given by URL.
type InputVideo struct {
	URL string `json:"url,omitempty"`
}

// ImageOutputConfig controls generated image dimensions and encoding.
type ImageOutputConfig struct {
	Height         int            `json:"height,omitempty"`
	Width          int            `json:"width,omitempty"`
	ResponseFormat ResponseFormat `json:"response_format,omitempty"`
}

// VideoOutputConfig controls generated video dimensions and timing.
type VideoOutputConfig struct {
	Height   int `json:"height,omitempty"`
	Width    int `json:"width,omitempty"`
	Duration int `json:"duration,omitempty"` // seconds
	Fps      int `json:"fps,omitempty"`
}

// ImageExtra holds optional image parameters.
type ImageExtra struct {
	Seed  *int       `json:"seed,omitempty"`
	Style ImageStyle `json:"style,omitempty"`
}

// VideoExtra holds optional video parameters.
type VideoExtra struct {
	Seed           *int   `json:"seed,omitempty"`
	AudioEnabled   bool   `json:"audio_enabled"`
	NegativePrompt string `json:"negative_prompt,omitempty"`
}

// ImageParameters groups inputs and output configuration for an image job.
type ImageParameters struct {
	InputImages  []InputImage       `json:"input_images,omitempty"`
	OutputConfig *ImageOutputConfig `json:"output_config,omitempty"`
}

// VideoParameters groups inputs and output configuration for a video job.
type VideoParameters struct {
	InputImages  []InputImage       `json:"input_images,omitempty"`
	InputVideos  []InputVideo       `json:"input_videos,omitempty"`
	OutputConfig *VideoOutputConfig `json:"output_config,omitempty"`
}

// ImageRequest submits an image job. SyncMode and Stream are set by the
// calling method.
type ImageRequest struct {
	Model      string           `json:"model"`
	JobType    ImageJobType     `json:"job_type"`
	SyncMode   SyncMode         `json:"sync_mode"`
	Stream     bool             `json:"stream,omitempty"`
	Prompt     string           `json:"prompt"`
	N          int              `json:"n,omitempty"`
	Parameters *ImageParameters `json:"parameters,omitempty"`
	Extra      *ImageExtra      `json:"extra,omitempty"`
}

// VideoRequest submits a video job. An empty SyncMode means async.
type VideoRequest struct {
	Model      string           `json:"model"`
	JobType    VideoJobType     `json:"job_type"`
	SyncMode   SyncMode         `json:"sync_mode"`
	Prompt     string           `json:"prompt"`
	N          int              `json:"n,omitempty"`
	Parameters *VideoParameters `json:"parameters,omitempty"`
	Extra      *VideoExtra      `json:"extra,omitempty"`
}

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TextRequest submits a text job. Messages is used by chat/completions,
// Prompt by completions and responses. Extra is merged into the top-level
// JSON object without overriding named fields.
type TextRequest struct {
	Model            string      `json:"model"`
	JobType          TextJobType `json:"job_type"`
	Stream           bool        `json:"stream,omitempty"`
	Messages         []Message   `json:"messages,omitempty"`
	Prompt           string      `json:"prompt,omitempty"`
	MaxTokens        *int        `json:"max_tokens,omitempty"`
	Temperature      *float64    `json:"temperature,omitempty"`
	TopP             *float64    `json:"top_p,omitempty"`
	FrequencyPenalty *float64    `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64    `json:"presence_penalty,omitempty"`

	Extra map[string]any `json:"-"`
}

// MarshalJSON encodes the named fields and merges Extra.
func (r TextRequest) MarshalJSON() ([]byte, error) {
	type plain TextRequest
	data, err := json.Marshal(plain(r))
	if err != nil || len(r.Extra) == 0 {
		return data, err
	}

	var merged map[string]any
	if err := json.Unmarshal(data, &merged); err != nil {
		return nil, err
	}
	for k, v := range r.Extra {
		if _, taken := merged[k]; !taken {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// StatusRequest asks for the current state of a job.
type StatusRequest struct {
	JobID string
}

func (r StatusRequest) path() string {
	return "/generation/job/" + url.PathEscape(r.JobID)
}

// Ptr returns a pointer to v, for optional request fields.
func Ptr[T any](v T) *T {
	return &v
}

func validImageJobType(t ImageJobType) bool {
	switch t {
	case ImageJobGeneration, ImageJobEdit, ImageJobVariation:
		return true
	}
	return false
}

func validVideoJobType(t VideoJobType) bool {
	switch t {
	case VideoJobText2Video, VideoJobImage2Video:
		return true
	}
	return false
}

func validTextJobType(t TextJobType) bool {
	switch t {
	case TextJobChatCompletions, TextJobCompletions, TextJobResponses:
		return true
	}
	return false
}
