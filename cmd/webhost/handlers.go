// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/z5labs/webhost/flow"
	"github.com/z5labs/webhost/http/httpflow"
	"github.com/z5labs/webhost/requestinfo"

	"github.com/google/uuid"
)

const (
	requestIDHeader   = "X-Request-Id"
	requestIDProperty = "request_id"
	serviceProperty   = "service"
)

// requestIDAction keeps the caller's request id or mints a new one.
func requestIDAction() httpflow.Action {
	return httpflow.ActionFunc(func(ctx context.Context, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		flow.SetProperty(ctx, requestIDProperty, id)
	})
}

func echoRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, ok := flow.StringProperty(r.Context(), requestIDProperty); ok {
			w.Header().Set(requestIDHeader, id)
		}
		next.ServeHTTP(w, r)
	})
}

type requestInfoResponse struct {
	TimeoutSeconds float64        `json:"timeout_seconds"`
	Priority       string         `json:"priority"`
	ClientIdentity string         `json:"client_identity"`
	RemoteAddress  string         `json:"remote_address,omitempty"`
	Properties     map[string]any `json:"properties"`
}

func requestInfoHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		info, ok := requestinfo.FromContext(ctx)
		if !ok {
			http.Error(w, "request was not classified", http.StatusInternalServerError)
			return
		}

		resp := requestInfoResponse{
			TimeoutSeconds: info.Timeout.Seconds(),
			Priority:       info.Priority.String(),
			ClientIdentity: info.ClientApplicationIdentity,
			Properties:     flow.Properties(ctx),
		}
		if info.RemoteAddress.IsValid() {
			resp.RemoteAddress = info.RemoteAddress.String()
		}
		writeJSON(w, http.StatusOK, resp)
	})
}

func contextHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Query().Get("name")
		v, ok := flow.Property(r.Context(), name)
		if !ok {
			http.Error(w, "property not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{name: v})
	})
}

type downstreamResponse struct {
	StatusCode int    `json:"status_code"`
	Body       string `json:"body"`
}

func downstreamHandler(client *http.Client, target string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target, nil)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		resp, err := client.Do(req)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		defer resp.Body.Close()

		b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		writeJSON(w, http.StatusOK, downstreamResponse{
			StatusCode: resp.StatusCode,
			Body:       string(b),
		})
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
