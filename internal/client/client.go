// Package client consumes the streaming /api/translate endpoint.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/valpere/codeconvert/internal/translator"
	"github.com/valpere/codeconvert/pkg/logger"
)

const TranslatePath = "/api/translate"

// ErrEmptyResponse is returned when a successful response carries no body.
var ErrEmptyResponse = errors.New("translation response has no body")

// TransportError is a non-200 reply from the translation endpoint.
type TransportError struct {
	StatusCode int
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("translation endpoint returned status %d", e.StatusCode)
}

type Client struct {
	endpoint string
	client   *http.Client
	readSize int
}

// New creates a client for the proxy at endpoint (scheme and host, no path).
// headerTimeout bounds the wait for the response status line only; the body
// may stream for as long as the context allows.
func New(endpoint string, headerTimeout time.Duration) *Client {
	if headerTimeout <= 0 {
		headerTimeout = 60 * time.Second
	}
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		client: &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				ResponseHeaderTimeout: headerTimeout,
				MaxIdleConnsPerHost:   2,
				IdleConnTimeout:       90 * time.Second,
			},
		},
		readSize: 4096,
	}
}

// Translate posts body and hands every decoded chunk to sink in arrival
// order. It returns the concatenation of all chunks. A read failure after
// the stream has started ends it early without an error; cancellation of ctx
// returns ctx.Err() together with the text received so far.
func (c *Client) Translate(ctx context.Context, body translator.TranslateBody, sink func(chunk string)) (string, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.endpoint+TranslatePath, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &TransportError{StatusCode: resp.StatusCode}
	}

	if resp.Body == nil || resp.Body == http.NoBody {
		return "", ErrEmptyResponse
	}

	var (
		dec  chunkDecoder
		code strings.Builder
		buf  = make([]byte, c.readSize)
	)

	emit := func(s string) {
		if s == "" {
			return
		}
		code.WriteString(s)
		if sink != nil {
			sink(s)
		}
	}

	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			emit(dec.Decode(buf[:n]))
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return code.String(), ctx.Err()
			}
			logger.Warnf("translation stream ended early: %v", err)
			break
		}
	}
	emit(dec.Flush())

	return code.String(), nil
}
