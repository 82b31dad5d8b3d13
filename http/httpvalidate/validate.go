// Copyright (c) 2023 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package httpvalidate provides request validators which answer invalid
// requests before they reach a handler.
package httpvalidate

import (
	"net/http"
	"strings"
)

// Validator represents an http.Request validator. A validator which
// returns false must have written the response.
type Validator interface {
	Validate(http.ResponseWriter, *http.Request) bool
}

// ValidatorFunc implements Validator for funcs.
type ValidatorFunc func(http.ResponseWriter, *http.Request) bool

// Validate implements the Validator interface.
func (f ValidatorFunc) Validate(w http.ResponseWriter, r *http.Request) bool {
	return f(w, r)
}

// Handler is an http.Handler which applies request validators
// before passing the request to a wrapped http.Handler.
type Handler struct {
	validators []Validator
	base       http.Handler
}

// Request allows you to wrap a given http.Handler with request validators.
func Request(h http.Handler, validators ...Validator) *Handler {
	return &Handler{
		validators: validators,
		base:       h,
	}
}

// ServeHTTP implements the http.Handler interface.
func (h *Handler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	for _, validator := range h.validators {
		if !validator.Validate(w, req) {
			return
		}
	}
	h.base.ServeHTTP(w, req)
}

// ForMethods will validate the incoming requests' method is one of the given.
// Other methods are answered with 405 and an Allow header.
func ForMethods(methods ...string) Validator {
	allow := strings.Join(methods, ", ")
	return ValidatorFunc(func(w http.ResponseWriter, r *http.Request) bool {
		for _, method := range methods {
			if method == r.Method {
				return true
			}
		}
		w.Header().Set("Allow", allow)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	})
}

// MinimumParams validates that the incoming HTTP request
// has, at minimum, the query parameters given by the argument, names.
func MinimumParams(names ...string) Validator {
	return ValidatorFunc(func(w http.ResponseWriter, r *http.Request) bool {
		params := r.URL.Query()
		for _, name := range names {
			if !params.Has(name) {
				http.Error(w, "missing query parameter: "+name, http.StatusBadRequest)
				return false
			}
		}
		return true
	})
}
