package commands

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/petal-labs/onething/core"
	"github.com/petal-labs/onething/providers/onething"
)

type textOptions struct {
	prompt      string
	system      string
	jobType     string
	maxTokens   int
	temperature float64
	topP        float64
	stream      bool
}

func (a *App) newTextCommand() *cobra.Command {
	var opts textOptions

	cmd := &cobra.Command{
		Use:   "text",
		Short: "Run a text generation request",
		Long: `Run a chat or completion request.

Examples:
  onething text --model qwen-max --prompt "Hello"
  onething text --prompt "Write a haiku" --system "Be terse" --stream
  onething text --job-type completions --prompt "Once upon a time" --json`,
		Args: cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			req, err := a.buildTextRequest(cmd, opts)
			if err != nil {
				return err
			}
			return a.runText(cmd.Context(), req, opts.stream)
		}),
	}

	f := cmd.Flags()
	f.StringVar(&opts.prompt, "prompt", "", "user message (required)")
	f.StringVar(&opts.system, "system", "", "system message (chat only)")
	f.StringVar(&opts.jobType, "job-type", "", "chat/completions, completions or responses")
	f.IntVar(&opts.maxTokens, "max-tokens", 0, "maximum tokens to generate")
	f.Float64Var(&opts.temperature, "temperature", 0, "sampling temperature")
	f.Float64Var(&opts.topP, "top-p", 0, "nucleus sampling mass")
	f.BoolVar(&opts.stream, "stream", false, "stream output as it is generated")
	_ = cmd.MarkFlagRequired("prompt")

	return cmd
}

func (a *App) buildTextRequest(cmd *cobra.Command, opts textOptions) (*onething.TextRequest, error) {
	model, err := a.requireModel()
	if err != nil {
		return nil, err
	}

	req := &onething.TextRequest{
		Model:   model,
		JobType: onething.TextJobType(opts.jobType),
	}
	if req.JobType == "" || req.JobType == onething.TextJobChatCompletions {
		if opts.system != "" {
			req.Messages = append(req.Messages, onething.Message{Role: "system", Content: opts.system})
		}
		req.Messages = append(req.Messages, onething.Message{Role: "user", Content: opts.prompt})
	} else {
		req.Prompt = opts.prompt
	}

	flags := cmd.Flags()
	if flags.Changed("max-tokens") {
		req.MaxTokens = onething.Ptr(opts.maxTokens)
	}
	if flags.Changed("temperature") {
		req.Temperature = onething.Ptr(opts.temperature)
	}
	if flags.Changed("top-p") {
		req.TopP = onething.Ptr(opts.topP)
	}
	return req, nil
}

func (a *App) runText(ctx context.Context, req *onething.TextRequest, stream bool) error {
	client, err := a.client()
	if err != nil {
		return err
	}
	defer client.Close()

	if stream {
		return a.streamText(ctx, client, req)
	}

	resp, err := client.GenerateText(ctx, req)
	if err != nil {
		return err
	}
	if a.jsonOutput {
		return writeJSON(a.stdout, resp)
	}
	fmt.Fprintln(a.stdout, chunkText(resp.Data))
	return nil
}

func (a *App) streamText(ctx context.Context, client *onething.Client, req *onething.TextRequest) error {
	reader, err := client.StreamText(ctx, req)
	if err != nil {
		return err
	}
	defer reader.Close()

	for {
		chunk, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if a.jsonOutput {
			if err := writeJSON(a.stdout, chunk); err != nil {
				return err
			}
			continue
		}
		fmt.Fprint(a.stdout, chunkText(chunk))
	}
	if !a.jsonOutput {
		fmt.Fprintln(a.stdout)
	}
	return nil
}

// chunkText pulls the generated text out of an OpenAI-shaped payload:
// choices[0].delta.content for stream chunks, choices[0].message.content or
// choices[0].text for full responses, and output_text for the responses API.
func chunkText(chunk core.TextChunk) string {
	if choices, ok := chunk["choices"].([]any); ok && len(choices) > 0 {
		if choice, ok := choices[0].(map[string]any); ok {
			for _, key := range []string{"delta", "message"} {
				if m, ok := choice[key].(map[string]any); ok {
					if s, ok := m["content"].(string); ok {
						return s
					}
				}
			}
			if s, ok := choice["text"].(string); ok {
				return s
			}
		}
	}
	if s, ok := chunk["output_text"].(string); ok {
		return s
	}
	if s, ok := chunk["text"].(string); ok {
		return s
	}
	return ""
}
