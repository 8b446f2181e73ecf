// Package core provides the shared contracts of the onething SDK: job and
// stream event types, the error taxonomy, the retry policy, the SSE decoder
// and the job poller.
//
// The package has no dependencies outside the standard library so that the
// provider, the CLI and the contrib adapters can all build on it.
//
// # Jobs
//
// Generation work is tracked by the service as a [Job]. Its status moves from
// [StatusProcessing] to exactly one of [StatusSuccess] or [StatusFailed].
// Decoding enforces that Result is present only on success and Error only on
// failure:
//
//	var job core.ImageJob
//	if err := json.Unmarshal(body, &job); err != nil {
//	    return err
//	}
//	for _, img := range job.Artifacts() {
//	    fmt.Println(img.URL)
//	}
//
// # Polling
//
// [PollJob] waits for a job to finish. It checks MaxAttempts and Timeout
// before each fetch and reports every fetch through OnProgress:
//
//	job, err := core.PollJob(ctx, id, fetch, core.PollOptions{
//	    Interval:   2 * time.Second,
//	    Timeout:    5 * time.Minute,
//	    OnProgress: func(p float64, s core.Status) { log.Printf("%s %.0f%%", s, p*100) },
//	})
//
// Waits go through a [Clock], so tests and goroutine-driven callers can
// substitute their own wait primitive.
//
// # Streaming
//
// [EventReader] decodes a typed job stream from any [LineSource]. Comment
// and blank lines are skipped and "data: [DONE]" ends the stream:
//
//	for ev, err := range reader.All() {
//	    if err != nil {
//	        return err
//	    }
//	    if ev.Type == core.EventPartialResult {
//	        fmt.Println(ev.Data.URL)
//	    }
//	}
//
// [TextReader] decodes completion-style streams where one JSON object may
// span several data lines.
//
// # Error Handling
//
// The package defines sentinel errors for each failure kind:
//   - [ErrValidation]: a local precondition failed, no request was sent
//   - [ErrUnauthorized]: the API key was rejected (401/403)
//   - [ErrRateLimited]: the service returned 429
//   - [ErrAPI]: any response with an HTTP status
//   - [ErrServer]: the service returned 5xx
//   - [ErrNetwork]: no response was received
//   - [ErrDecode]: a response body could not be parsed
//   - [ErrStream]: a stream event was malformed or reported an error
//   - [ErrJobFailed]: a polled job reached the failed state
//   - [ErrTimeout]: a polling bound was exceeded
//   - [ErrRetriesExhausted]: every attempt of a request failed
//
// Use errors.Is to check error kinds and errors.As for details:
//
//	var apiErr *core.APIError
//	if errors.As(err, &apiErr) {
//	    log.Printf("status=%d request_id=%s", apiErr.Status, apiErr.RequestID)
//	}
//
// # Retry Policy
//
// [DefaultRetryPolicy] retries connectivity faults, 429 and 5xx up to three
// times with a linear delay of (attempt+1) seconds capped at 30s. Other 4xx
// responses are never retried.
//
// # Telemetry
//
// Implement [TelemetryHook] to observe every HTTP attempt. Events never carry
// the API key or request and response bodies.
package core
