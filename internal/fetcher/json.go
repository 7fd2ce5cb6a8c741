package fetcher

import (
	"context"
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
)

// DecodeArray reads a JSON array from r one element at a time and hands each
// to fn. An empty body and a literal null both count as an empty array. It
// returns the number of elements passed to fn.
func DecodeArray[T any](ctx context.Context, r io.Reader, fn func(T) error) (int, error) {
	dec := json.NewDecoder(r)

	tok, err := dec.Token()
	switch {
	case err == io.EOF:
		return 0, nil
	case err != nil:
		return 0, eris.Wrap(err, "json: read opening token")
	case tok == nil:
		return 0, nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return 0, eris.Errorf("json: expected '[', got %v", tok)
	}

	n := 0
	for dec.More() {
		if err := ctx.Err(); err != nil {
			return n, eris.Wrap(err, "json: context cancelled")
		}
		var item T
		if err := dec.Decode(&item); err != nil {
			return n, eris.Wrapf(err, "json: decode element %d", n)
		}
		if err := fn(item); err != nil {
			return n, err
		}
		n++
	}

	if _, err := dec.Token(); err != nil && err != io.EOF {
		return n, eris.Wrap(err, "json: read closing token")
	}
	return n, nil
}
