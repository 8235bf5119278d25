package app

import (
	"encoding/json"
	"fmt"
	"net/http"
)

const maxRequestBody = 1 << 20 // 1 MiB

// decodeJSON decodes a request body into dst, rejecting oversized bodies and
// trailing garbage.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxRequestBody))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	if dec.More() {
		return fmt.Errorf("unexpected trailing data in request body")
	}
	return nil
}
