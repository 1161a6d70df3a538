package extract

import (
	"context"
	"io"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/docvault/docvault/internal/apperr"
)

// CancelCheck is polled between extraction steps; it returns a cancelled
// error when the surrounding upload has been withdrawn.
type CancelCheck func() error

// UnitResult records the outcome of one unit.
type UnitResult struct {
	Unit Unit
	Text string
	Err  error
}

// Result is the outcome of a full extraction run.
type Result struct {
	Text   string
	Units  []UnitResult
	Failed int
}

// Run submits the document and extracts its units one at a time, polling
// check before the submission and before every unit. A unit that still
// fails after retries is recorded and skipped; the run only errors as a
// whole when every unit failed or the run was cancelled.
func Run(ctx context.Context, c *Client, name, mimeType string, r io.Reader, check CancelCheck) (*Result, error) {
	if check == nil {
		check = func() error { return nil }
	}

	if err := check(); err != nil {
		return nil, err
	}

	doc, err := c.Submit(ctx, name, mimeType, r)
	if err != nil {
		return nil, err
	}

	res := &Result{Units: make([]UnitResult, 0, len(doc.Units))}
	var texts []string

	for _, unit := range doc.Units {
		if err := check(); err != nil {
			return nil, err
		}

		text, err := c.ExtractUnit(ctx, doc.Token, unit)
		if err != nil {
			if apperr.Is(err, apperr.KindCancelled) {
				return nil, err
			}

			log.Warn().
				Err(err).
				Str("unit", unit.ID).
				Str("kind", string(unit.Kind)).
				Msg("unit extraction failed")

			res.Units = append(res.Units, UnitResult{Unit: unit, Err: err})
			res.Failed++

			continue
		}

		res.Units = append(res.Units, UnitResult{Unit: unit, Text: text})
		texts = append(texts, text)
	}

	if len(doc.Units) > 0 && res.Failed == len(doc.Units) {
		return nil, apperr.New(apperr.KindExtractionFailed, "every unit failed to extract")
	}

	res.Text = strings.Join(texts, "\n\n")

	return res, nil
}
