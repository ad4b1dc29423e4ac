package core

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
)

const (
	ssePrefix     = "data: "
	sseTerminator = "[DONE]"
)

// DecodeCompletion extracts the reply text from a chat-completions response
// body. Backends disagree on whether stream:false is honored, so three shapes
// are accepted: a JSON completion, the same JSON sent as SSE lines, and a
// true SSE delta stream.
func DecodeCompletion(status int, body []byte) (string, error) {
	if status < 200 || status > 299 {
		return "", newHTTPError(status, body)
	}
	if text, ok := decodeJSONCompletion(body); ok {
		return text, nil
	}
	if bytes.Contains(body, []byte(ssePrefix)) {
		if text := parseSSEText(string(body)); text != "" {
			return text, nil
		}
	}
	return "", &DecodeError{Raw: string(body)}
}

func decodeJSONCompletion(body []byte) (string, bool) {
	var envelope struct {
		Choices json.RawMessage `json:"choices"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return "", false
	}
	raw := bytes.TrimSpace(envelope.Choices)
	if len(raw) == 0 || raw[0] != '[' {
		return "", false
	}
	var choices []oaiChoice
	if err := json.Unmarshal(raw, &choices); err != nil {
		return "", false
	}
	if len(choices) == 0 {
		return "", true
	}
	c := choices[0]
	if text := c.Message.text(); text != "" {
		return text, true
	}
	return c.Delta.text(), true
}

// parseSSEText concatenates the content of every data line. Lines that fail
// to parse are skipped.
func parseSSEText(text string) string {
	var result strings.Builder
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, ssePrefix) {
			continue
		}
		data := strings.TrimSpace(trimmed[len(ssePrefix):])
		if data == sseTerminator {
			continue
		}
		delta, err := decodeChunk(data)
		if err != nil {
			continue
		}
		result.WriteString(delta)
	}
	return result.String()
}

// decodeChunk reads one streamed chunk, preferring delta content over a full message.
func decodeChunk(data string) (string, error) {
	var chunk struct {
		Choices []oaiChoice `json:"choices"`
	}
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		return "", err
	}
	if len(chunk.Choices) == 0 {
		return "", nil
	}
	c := chunk.Choices[0]
	if text := c.Delta.text(); text != "" {
		return text, nil
	}
	return c.Message.text(), nil
}

func newHTTPError(status int, body []byte) *HTTPError {
	msg := strings.TrimSpace(string(body))
	var errResp struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil && len(errResp.Error) > 0 {
		var structured struct {
			Message string `json:"message"`
		}
		var plain string
		if json.Unmarshal(errResp.Error, &structured) == nil && structured.Message != "" {
			msg = structured.Message
		} else if json.Unmarshal(errResp.Error, &plain) == nil && plain != "" {
			msg = plain
		}
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &HTTPError{Status: status, Message: msg}
}

type oaiChoice struct {
	Message oaiResponseMessage `json:"message"`
	Delta   oaiResponseMessage `json:"delta"`
}

type oaiResponseMessage struct {
	Content json.RawMessage `json:"content"`
}

// text accepts both a plain string and a list of typed content parts.
func (m oaiResponseMessage) text() string {
	if len(m.Content) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(m.Content, &s); err == nil {
		return s
	}
	var parts []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(m.Content, &parts); err != nil {
		return ""
	}
	var b strings.Builder
	for _, p := range parts {
		if p.Type == "" || p.Type == "text" {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}
