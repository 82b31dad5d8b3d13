// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package webhost

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/z5labs/webhost/internal/try"
	"github.com/z5labs/webhost/pkg/slogfield"
)

// recoverPanics answers requests whose handler panicked with 500. Panics
// with [http.ErrAbortHandler] keep aborting the response.
func recoverPanics(log *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &statusRecorder{ResponseWriter: w}
		err := serve(next, rw, r)
		if err == nil {
			return
		}
		if errors.Is(err, http.ErrAbortHandler) {
			panic(http.ErrAbortHandler)
		}

		log.ErrorContext(
			r.Context(),
			"recovered from panic while serving request",
			slogfield.String("method", r.Method),
			slogfield.String("path", r.URL.Path),
			slogfield.Error(err),
		)
		if rw.wroteHeader {
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	})
}

func serve(h http.Handler, w http.ResponseWriter, r *http.Request) (err error) {
	defer try.Recover(&err)
	h.ServeHTTP(w, r)
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	wroteHeader bool
}

func (w *statusRecorder) WriteHeader(code int) {
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}

func (w *statusRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
