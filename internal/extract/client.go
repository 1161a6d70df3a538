// Package extract turns stored documents into text via the remote
// extraction service.
//
// The service splits a document into units (pages, slides, sheets, images)
// and extracts each unit separately, so a caller can stop between units
// when the surrounding upload is cancelled.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"github.com/docvault/docvault/internal/apperr"
	"github.com/docvault/docvault/internal/config"
)

const (
	// extractAttempts is the total number of tries per service call.
	extractAttempts = 3
	// extractBaseDelay is the initial backoff between tries.
	extractBaseDelay = 2 * time.Second
)

// UnitKind names the kind of document unit the service extracted.
type UnitKind string

const (
	UnitPage  UnitKind = "page"
	UnitSlide UnitKind = "slide"
	UnitSheet UnitKind = "sheet"
	UnitImage UnitKind = "image"
)

// Unit is one extractable piece of a submitted document.
type Unit struct {
	ID   string   `json:"id"`
	Kind UnitKind `json:"kind"`
	Name string   `json:"name"`
}

// Document is the service's handle for a submitted file plus its units.
type Document struct {
	Token string `json:"token"`
	Units []Unit `json:"units"`
}

// Client talks to the extraction service.
type Client struct {
	baseURL   string
	hc        *http.Client
	retryBase time.Duration
}

// NewClient builds a Client from the extraction config.
func NewClient(cfg config.Extraction) *Client {
	return &Client{
		baseURL:   cfg.URL,
		hc:        &http.Client{Timeout: time.Duration(cfg.Timeout) * time.Second},
		retryBase: extractBaseDelay,
	}
}

// Submit uploads the document bytes and returns the service's handle with
// the units it found. The call is retried on transient failures.
func (c *Client) Submit(ctx context.Context, name, mimeType string, r io.Reader) (*Document, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return nil, apperr.Internal(err, "failed to build extraction request")
	}

	if _, err := io.Copy(part, r); err != nil {
		return nil, apperr.Internal(err, "failed to buffer document for extraction")
	}

	if err := mw.Close(); err != nil {
		return nil, apperr.Internal(err, "failed to build extraction request")
	}

	var doc Document
	err = c.withRetry(ctx, "submit", func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/documents", bytes.NewReader(body.Bytes()))
		if err != nil {
			return backoff.Permanent(err)
		}

		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set("X-Mime-Type", mimeType)

		return c.do(req, &doc)
	})
	if err != nil {
		return nil, err
	}

	return &doc, nil
}

// ExtractUnit returns the text of one unit of a submitted document,
// retrying transient failures.
func (c *Client) ExtractUnit(ctx context.Context, token string, unit Unit) (string, error) {
	var out struct {
		Text string `json:"text"`
	}

	url := fmt.Sprintf("%s/documents/%s/units/%s/text", c.baseURL, token, unit.ID)

	err := c.withRetry(ctx, "extract_unit", func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}

		return c.do(req, &out)
	})
	if err != nil {
		return "", err
	}

	return out.Text, nil
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("extraction service returned %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		// client errors will not heal with a retry
		return backoff.Permanent(fmt.Errorf("extraction service rejected the request with %d", resp.StatusCode))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return backoff.Permanent(err)
	}

	return nil
}

func (c *Client) withRetry(ctx context.Context, op string, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryBase

	policy := backoff.WithContext(backoff.WithMaxRetries(b, extractAttempts-1), ctx)

	err := backoff.Retry(func() error {
		if err := fn(); err != nil {
			log.Warn().Err(err).Str("op", op).Msg("extraction call failed")

			return err
		}

		return nil
	}, policy)
	if err != nil {
		if ctx.Err() != nil {
			return apperr.New(apperr.KindCancelled, "extraction cancelled")
		}

		return apperr.Wrap(apperr.KindExtractionFailed, err, "extraction service call failed")
	}

	return nil
}
