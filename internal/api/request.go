package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// MaxBodySize is the maximum allowed request body size (1 MB).
const MaxBodySize = 1 << 20

// DecodeJSON reads and decodes a JSON request body into dst.
// It returns user-friendly error messages instead of leaking Go internals.
func DecodeJSON(r *http.Request, dst interface{}) error {
	if r.Body == nil {
		return errors.New("request body is empty")
	}

	r.Body = http.MaxBytesReader(nil, r.Body, MaxBodySize)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	if err == nil {
		return nil
	}

	var syntaxErr *json.SyntaxError
	var unmarshalTypeErr *json.UnmarshalTypeError
	var maxBytesErr *http.MaxBytesError

	switch {
	case errors.As(err, &syntaxErr):
		return fmt.Errorf("malformed JSON at position %d", syntaxErr.Offset)
	case errors.As(err, &unmarshalTypeErr):
		return fmt.Errorf("invalid value for field %q: expected %s", unmarshalTypeErr.Field, unmarshalTypeErr.Type)
	case errors.Is(err, io.EOF):
		return errors.New("request body is empty")
	case errors.As(err, &maxBytesErr):
		return fmt.Errorf("request body exceeds maximum size of %d bytes", MaxBodySize)
	case strings.HasPrefix(err.Error(), "json: unknown field"):
		field := strings.TrimPrefix(err.Error(), "json: unknown field ")
		return fmt.Errorf("unknown field %s", field)
	default:
		return errors.New("invalid JSON in request body")
	}
}

// ParseForm parses query and body fields with the body size limit applied.
func ParseForm(r *http.Request) error {
	if r.Body != nil {
		r.Body = http.MaxBytesReader(nil, r.Body, MaxBodySize)
	}
	if err := r.ParseForm(); err != nil {
		return fmt.Errorf("invalid form data: %w", err)
	}
	return nil
}

// FormHas reports whether a field was submitted, with or without a value.
// Call ParseForm first.
func FormHas(r *http.Request, name string) bool {
	_, ok := r.Form[name]
	if !ok {
		_, ok = r.Form[name+"[]"]
	}
	return ok
}

// FormStrings returns every value of a multi-value field, accepting both
// "name[]" and "name". Empty values are dropped and duplicates removed,
// keeping first-seen order.
func FormStrings(r *http.Request, name string) []string {
	raw := append(append([]string(nil), r.Form[name+"[]"]...), r.Form[name]...)

	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		// A single field may also carry a comma separated list
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" || seen[part] {
				continue
			}
			seen[part] = true
			out = append(out, part)
		}
	}
	return out
}

// FormInts returns a multi-value field as integers. Values that are not
// numbers are returned in the second result.
func FormInts(r *http.Request, name string) ([]int, []string) {
	var ints []int
	var invalid []string
	for _, v := range FormStrings(r, name) {
		n, err := strconv.Atoi(v)
		if err != nil {
			invalid = append(invalid, v)
			continue
		}
		ints = append(ints, n)
	}
	return ints, invalid
}

// FormInt returns a single integer field, or def when absent or invalid.
func FormInt(r *http.Request, name string, def int) int {
	v := strings.TrimSpace(r.Form.Get(name))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
