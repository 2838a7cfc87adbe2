// Package stream validates Bundle resources entry by entry, so large
// bundles never need a fully materialized parse per entry on the caller
// side.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/buger/jsonparser"

	fv "github.com/reason-healthcare/rh-sub009"
	"github.com/reason-healthcare/rh-sub009/worker"
)

// EntryResult is the outcome for one bundle entry. An Index of -1 marks
// a failure reading the bundle itself.
type EntryResult struct {
	Index        int
	FullURL      string
	ResourceType string
	ResourceID   string
	Result       *fv.Result
	Err          error
}

// BundleValidator feeds bundle entries through a per-resource validate
// function.
type BundleValidator struct {
	validate worker.ValidateFunc
	buffer   int
	workers  int
}

// NewBundleValidator wraps validate for bundle traversal.
func NewBundleValidator(validate worker.ValidateFunc) *BundleValidator {
	return &BundleValidator{
		validate: validate,
		buffer:   64,
		workers:  4,
	}
}

// WithBuffer sets the result channel buffer size.
func (bv *BundleValidator) WithBuffer(size int) *BundleValidator {
	if size > 0 {
		bv.buffer = size
	}
	return bv
}

// WithWorkers sets the worker count for ValidateParallel.
func (bv *BundleValidator) WithWorkers(count int) *BundleValidator {
	if count > 0 {
		bv.workers = count
	}
	return bv
}

// ValidateStream reads a bundle from r and emits one result per entry,
// in bundle order, validating on the reading goroutine. The channel is
// closed when the bundle is exhausted or the context is cancelled.
func (bv *BundleValidator) ValidateStream(ctx context.Context, r io.Reader) <-chan *EntryResult {
	results := make(chan *EntryResult, bv.buffer)

	go func() {
		defer close(results)
		err := forEachEntry(ctx, r, func(index int, entry []byte) {
			er := bv.validateEntry(ctx, index, entry)
			select {
			case results <- er:
			case <-ctx.Done():
			}
		})
		if err != nil {
			results <- &EntryResult{Index: -1, Err: err}
		}
	}()

	return results
}

// ValidateParallel reads the whole bundle, validates entries across the
// configured workers, and returns results in bundle order.
func (bv *BundleValidator) ValidateParallel(ctx context.Context, r io.Reader) ([]*EntryResult, error) {
	var entries [][]byte
	err := forEachEntry(ctx, r, func(_ int, entry []byte) {
		entries = append(entries, entry)
	})
	if err != nil {
		return nil, err
	}

	resources := make([][]byte, len(entries))
	for i, entry := range entries {
		if resource, dt, _, err := jsonparser.Get(entry, "resource"); err == nil && dt == jsonparser.Object {
			resources[i] = resource
		}
	}

	batch := worker.NewBatchValidator(bv.validate, bv.workers)
	br := batch.ValidateBatch(ctx, resources)

	out := make([]*EntryResult, len(entries))
	for i, entry := range entries {
		er := &EntryResult{Index: i}
		fillEntryMeta(er, entry)
		if resources[i] == nil {
			er.Err = fmt.Errorf("entry %d has no resource", i)
		} else if jr := br.Results[i]; jr != nil {
			er.Result = jr.Result
			er.Err = jr.Err
		} else {
			er.Err = ctx.Err()
		}
		out[i] = er
	}
	return out, nil
}

func (bv *BundleValidator) validateEntry(ctx context.Context, index int, entry []byte) *EntryResult {
	er := &EntryResult{Index: index}
	fillEntryMeta(er, entry)

	resource, dt, _, err := jsonparser.Get(entry, "resource")
	if err != nil || dt != jsonparser.Object {
		er.Err = fmt.Errorf("entry %d has no resource", index)
		return er
	}
	er.Result, er.Err = bv.validate(ctx, resource)
	return er
}

// fillEntryMeta pulls fullUrl and the resource identity out of a raw
// entry without a full decode.
func fillEntryMeta(er *EntryResult, entry []byte) {
	if s, err := jsonparser.GetString(entry, "fullUrl"); err == nil {
		er.FullURL = s
	}
	if s, err := jsonparser.GetString(entry, "resource", "resourceType"); err == nil {
		er.ResourceType = s
	}
	if s, err := jsonparser.GetString(entry, "resource", "id"); err == nil {
		er.ResourceID = s
	}
}

// forEachEntry tokenizes the bundle incrementally and hands each raw
// entry to fn. Fields before "entry" are skipped without retention.
func forEachEntry(ctx context.Context, r io.Reader, fn func(index int, entry []byte)) error {
	dec := json.NewDecoder(r)

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("reading bundle: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("bundle must be a JSON object, got %v", tok)
	}

	for dec.More() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("reading bundle field: %w", err)
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected token %v in bundle", tok)
		}

		if name != "entry" {
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return fmt.Errorf("skipping bundle field %s: %w", name, err)
			}
			continue
		}

		tok, err = dec.Token()
		if err != nil {
			return fmt.Errorf("reading entry array: %w", err)
		}
		if d, ok := tok.(json.Delim); !ok || d != '[' {
			return fmt.Errorf("entry must be an array, got %v", tok)
		}
		for index := 0; dec.More(); index++ {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var entry json.RawMessage
			if err := dec.Decode(&entry); err != nil {
				return fmt.Errorf("decoding entry %d: %w", index, err)
			}
			fn(index, entry)
		}
		return nil
	}
	return nil
}
