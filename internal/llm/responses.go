package llm

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	ErrEmptyOutput = errors.New("llm returned no output text")
	ErrOutputLimit = errors.New("llm output exceeds size limit")
)

type apiRequest struct {
	Model           string        `json:"model"`
	Instructions    string        `json:"instructions"`
	Stream          bool          `json:"stream"`
	Reasoning       *apiReasoning `json:"reasoning,omitempty"`
	Input           []apiMessage  `json:"input"`
	MaxOutputTokens int           `json:"max_output_tokens,omitempty"`
}

type apiReasoning struct {
	Effort string `json:"effort"`
}

type apiMessage struct {
	Role    string       `json:"role"`
	Content []apiContent `json:"content"`
}

type apiContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func newAPIRequest(model, effort string, maxTokens int, req Request) apiRequest {
	return apiRequest{
		Model:        model,
		Instructions: req.Instructions,
		Stream:       true,
		Reasoning:    &apiReasoning{Effort: effort},
		Input: []apiMessage{{
			Role:    "user",
			Content: []apiContent{{Type: "input_text", Text: req.Input}},
		}},
		MaxOutputTokens: maxTokens,
	}
}

type streamEvent struct {
	Type     string          `json:"type"`
	Delta    string          `json:"delta,omitempty"`
	Response *streamResponse `json:"response,omitempty"`
	Error    *apiErrorBody   `json:"error,omitempty"`
}

type streamResponse struct {
	Status            string        `json:"status,omitempty"`
	Error             *apiErrorBody `json:"error,omitempty"`
	IncompleteDetails *struct {
		Reason string `json:"reason"`
	} `json:"incomplete_details,omitempty"`
	Output []struct {
		Type    string `json:"type"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text,omitempty"`
		} `json:"content,omitempty"`
	} `json:"output,omitempty"`
}

type apiErrorBody struct {
	Message string `json:"message"`
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
}

// text joins the output_text parts of a finished response.
func (r *streamResponse) text() string {
	if r == nil {
		return ""
	}
	var b strings.Builder
	for _, item := range r.Output {
		for _, part := range item.Content {
			if part.Type == "output_text" || part.Type == "text" {
				b.WriteString(part.Text)
			}
		}
	}
	return b.String()
}

func (e streamEvent) failure() string {
	if e.Error != nil {
		return e.Error.Message
	}
	if e.Response != nil && e.Response.Error != nil {
		return e.Response.Error.Message
	}
	if e.Type == "response.failed" {
		return "response failed"
	}
	return ""
}

// outputText collects streamed text up to limit bytes.
type outputText struct {
	b        strings.Builder
	limit    int
	sawDelta bool
}

func (o *outputText) write(s string) error {
	if o.b.Len()+len(s) > o.limit {
		return fmt.Errorf("%w: %d bytes", ErrOutputLimit, o.limit)
	}
	o.b.WriteString(s)
	return nil
}

func (o *outputText) apply(evt streamEvent) error {
	if msg := evt.failure(); msg != "" {
		return fmt.Errorf("responses stream %s: %s", evt.Type, msg)
	}
	switch evt.Type {
	case "response.output_text.delta":
		o.sawDelta = true
		return o.write(evt.Delta)
	case "response.completed":
		if !o.sawDelta {
			return o.write(evt.Response.text())
		}
	case "response.incomplete":
		// Partial text is still a usable plan; only an empty result fails.
		if !o.sawDelta {
			if err := o.write(evt.Response.text()); err != nil {
				return err
			}
		}
		if strings.TrimSpace(o.b.String()) == "" {
			reason := "unknown"
			if evt.Response != nil && evt.Response.IncompleteDetails != nil {
				reason = evt.Response.IncompleteDetails.Reason
			}
			return fmt.Errorf("%w: response incomplete (%s)", ErrEmptyOutput, reason)
		}
	}
	return nil
}

// decodeStream reads a Responses API server-sent event stream and returns
// the assistant text.
func decodeStream(body io.Reader, maxBytes int) (string, error) {
	out := outputText{limit: maxBytes}
	err := eachSSEData(body, maxBytes+64*1024, func(data string) error {
		if data == "" || data == "[DONE]" {
			return nil
		}
		var evt streamEvent
		if err := json.Unmarshal([]byte(data), &evt); err != nil {
			return fmt.Errorf("unmarshal stream event: %w", err)
		}
		return out.apply(evt)
	})
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(out.b.String())
	if text == "" {
		return "", ErrEmptyOutput
	}
	return text, nil
}

// eachSSEData calls fn with the data payload of every event in body. Lines
// other than data: are ignored.
func eachSSEData(body io.Reader, maxLine int, fn func(data string) error) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)

	var lines []string
	flush := func() error {
		if len(lines) == 0 {
			return nil
		}
		data := strings.TrimSpace(strings.Join(lines, "\n"))
		lines = lines[:0]
		return fn(data)
	}
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			if err := flush(); err != nil {
				return err
			}
			continue
		}
		if rest, ok := strings.CutPrefix(line, "data:"); ok {
			lines = append(lines, strings.TrimSpace(rest))
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read event stream: %w", err)
	}
	return flush()
}
