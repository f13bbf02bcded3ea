// Package stream talks to the backend chat endpoint and decodes its
// server-sent-event frames into typed events.
package stream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"retrievai-client/pkg/logger"
)

type Client struct {
	httpClient *http.Client
	baseURL    string
	apiToken   string
}

// NewClient builds a streaming HTTP client. The client carries no overall
// timeout because a stream stays open for the whole exchange; timeout
// bounds the wait for response headers, and callers cancel delivery
// through the request context.
func NewClient(baseURL, apiToken string, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:          100,
				MaxIdleConnsPerHost:   10,
				IdleConnTimeout:       90 * time.Second,
				ResponseHeaderTimeout: timeout,
			},
		},
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiToken: apiToken,
	}
}

type chatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
	Stream         bool   `json:"stream"`
}

// Stream opens one chat exchange. Events arrive on the first channel in
// wire order; a transport failure arrives on the second. Both channels
// close when the exchange ends or ctx is cancelled. Cancellation is not
// an error: a stopped stream is simply a completed one.
func (c *Client) Stream(ctx context.Context, message, conversationID string) (<-chan Event, <-chan error) {
	events := make(chan Event, 16)
	errs := make(chan error, 1)

	go func() {
		defer close(events)
		defer close(errs)

		body, err := json.Marshal(chatRequest{
			Message:        message,
			ConversationID: conversationID,
			Stream:         true,
		})
		if err != nil {
			errs <- err
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/chat/", bytes.NewReader(body))
		if err != nil {
			errs <- err
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "text/event-stream")
		if c.apiToken != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiToken)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() == nil {
				errs <- fmt.Errorf("chat request: %w", err)
			}
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			errs <- fmt.Errorf("chat request: unexpected status %d", resp.StatusCode)
			return
		}

		if err := scanFrames(ctx, resp.Body, events); err != nil {
			errs <- err
		}
	}()

	return events, errs
}

// scanFrames reads SSE lines and forwards decoded data frames. Comment
// lines, event-name lines, [DONE] sentinels and undecodable frames are
// skipped; a skipped frame never terminates the stream.
func scanFrames(ctx context.Context, body io.Reader, events chan<- Event) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") || strings.HasPrefix(line, "event:") {
			continue
		}

		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "" || data == "[DONE]" {
			continue
		}

		var ev Event
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			logger.Debugf("chat stream: skipping undecodable frame: %v", err)
			continue
		}

		select {
		case events <- ev:
		case <-ctx.Done():
			return nil
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("read chat stream: %w", err)
	}
	return nil
}
