package core

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"

	"learnforge/internal/store"
)

// stream performs a streaming request and yields the cumulative reply text
// after every non-empty delta. A backend that ignores stream:true and answers
// with a plain body is decoded once through DecodeCompletion. The sequence
// always yields at least once; an error is always the last pair.
func (s *LLMService) stream(ctx context.Context, cfg store.AIConfig, messages []oaiMessage, temperature float64) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		resp, err := s.post(ctx, cfg, messages, temperature, true)
		if err != nil {
			yield("", err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			body, _ := io.ReadAll(resp.Body)
			yield("", newHTTPError(resp.StatusCode, body))
			return
		}

		var (
			raw       bytes.Buffer
			acc       strings.Builder
			sawEvents bool
			yielded   bool
		)
		reader := bufio.NewReader(resp.Body)
		for {
			line, readErr := reader.ReadString('\n')
			raw.WriteString(line)

			if data, ok := sseData(line); ok {
				sawEvents = true
				if data == sseTerminator {
					break
				}
				delta, err := decodeChunk(data)
				if err != nil {
					s.logger.Debug("skipping undecodable stream line", "error", err)
				} else if delta != "" {
					acc.WriteString(delta)
					yielded = true
					if !yield(acc.String(), nil) {
						return
					}
				}
			}

			if errors.Is(readErr, io.EOF) {
				break
			}
			if readErr != nil {
				yield(acc.String(), fmt.Errorf("read stream: %w", readErr))
				return
			}
		}

		if !sawEvents {
			text, err := DecodeCompletion(resp.StatusCode, raw.Bytes())
			yield(text, err)
			return
		}
		if !yielded {
			yield("", nil)
		}
	}
}

func sseData(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "data:") {
		return "", false
	}
	return strings.TrimSpace(trimmed[len("data:"):]), true
}
