package main

import (
	"bytes"
	"io"
	"net/http"
)

type ValidationMiddleware struct {
	maxBytes int64
}

func NewValidationMiddleware(maxBytes int64) *ValidationMiddleware {
	if maxBytes <= 0 {
		maxBytes = MaxRequestBodyBytes
	}
	return &ValidationMiddleware{
		maxBytes: maxBytes,
	}
}

func (m *ValidationMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			r.Body = http.MaxBytesReader(w, r.Body, m.maxBytes)

			// Read it all up front so oversized bodies fail before any handler runs.
			bodyBytes, err := io.ReadAll(r.Body)
			if err != nil {
				http.Error(w, ErrRequestBodyTooBig.Error(), http.StatusRequestEntityTooLarge)
				return
			}
			r.Body.Close()
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		}

		next.ServeHTTP(w, r)
	})
}
