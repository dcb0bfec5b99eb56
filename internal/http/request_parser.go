// Package http provides HTTP server and handler implementations.
//
// This file implements decoding of calculation payloads and query parameters.
// Payload quantities may be numbers, numeric strings, blank strings or null;
// blanks and nulls count as zero.

package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"ecocalc/internal/core"
	"ecocalc/internal/services"
)

// maxBodyBytes bounds calculation payloads.
const maxBodyBytes = 1 << 20

// DecodeCalculationInput reads a calculation payload. Unknown groups and
// categories are ignored; missing ones default to zero. Errors wrap
// core.ErrValidation. The result is not range-checked; see CalculationInput.Validate.
func DecodeCalculationInput(body io.Reader) (core.CalculationInput, error) {
	var in core.CalculationInput

	raw, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return in, core.NewValidationError("Request body too large")
		}
		return in, core.NewValidationError("Failed to read request body")
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return in, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var groups map[string]json.RawMessage
	if err := dec.Decode(&groups); err != nil {
		return in, core.NewValidationError("Invalid JSON body: expected an object")
	}

	decoded := make(map[core.Scope]map[string]any, 3)
	for _, f := range core.Factors() {
		values, seen := decoded[f.Scope]
		if !seen {
			if values, err = decodeGroup(groups[f.Scope.String()], f.Scope); err != nil {
				return in, err
			}
			decoded[f.Scope] = values
		}

		v, present := values[string(f.Category)]
		if !present {
			continue
		}
		q, err := quantity(v)
		if err != nil {
			return in, core.NewValidationError("%s.%s %s", f.Scope, f.Category, err)
		}
		in.SetQuantity(f.Category, q)
	}

	return in, nil
}

// decodeGroup returns the quantities of one scope group; absent and null groups are empty.
func decodeGroup(raw json.RawMessage, scope core.Scope) (map[string]any, error) {
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, nil
	}
	var values map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&values); err != nil {
		return nil, core.NewValidationError("%s must be an object", scope)
	}
	return values, nil
}

// quantity normalizes one payload value.
func quantity(v any) (float64, error) {
	switch val := v.(type) {
	case nil:
		return 0, nil
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return 0, fmt.Errorf("must be a valid number")
		}
		return f, nil
	case string:
		s := strings.TrimSpace(sanitizeInput(val))
		if s == "" {
			return 0, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("must be a valid number")
		}
		return f, nil
	default:
		return 0, fmt.Errorf("must be a number")
	}
}

// ParseLimit reads the history limit, defaulting when absent. Range checks
// beyond "positive integer" belong to the service.
func ParseLimit(query url.Values) (int, error) {
	v := strings.TrimSpace(query.Get("limit"))
	if v == "" {
		return services.DefaultHistoryLimit, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, core.NewValidationError("Limit must be an integer.")
	}
	return n, nil
}

// sanitizeInput removes control characters except tab, newline and carriage return.
func sanitizeInput(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
