// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package requestinfo classifies inbound HTTP requests by timeout, priority
// and caller identity.
package requestinfo

import (
	"context"
	"math"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/z5labs/webhost/flow"
)

// Well-known request headers.
const (
	HeaderRequestTimeout      = "Request-Timeout"
	HeaderRequestPriority     = "Request-Priority"
	HeaderApplicationIdentity = "Application-Identity"
)

// RequestInfo describes a single inbound request.
type RequestInfo struct {
	Timeout                   time.Duration
	Priority                  Priority
	ClientApplicationIdentity string
	RemoteAddress             netip.Addr
}

// Classify computes the [RequestInfo] for r.
//
// Classify does not recover from panicking providers.
func Classify(r *http.Request, settings Settings) RequestInfo {
	return RequestInfo{
		Timeout:                   timeout(r, settings),
		Priority:                  priority(r, settings),
		ClientApplicationIdentity: clientIdentity(r, settings),
		RemoteAddress:             RemoteAddress(r),
	}
}

func timeout(r *http.Request, settings Settings) time.Duration {
	if d, ok := ParseTimeout(r.Header.Get(HeaderRequestTimeout)); ok {
		return d
	}
	if d, ok := resolveFirst(r, settings.AdditionalTimeoutProviders); ok {
		return d
	}
	return settings.DefaultTimeoutProvider(r)
}

func priority(r *http.Request, settings Settings) Priority {
	if p, err := ParsePriority(r.Header.Get(HeaderRequestPriority)); err == nil {
		return p
	}
	if p, ok := resolveFirst(r, settings.AdditionalPriorityProviders); ok {
		return p
	}
	return settings.DefaultPriorityProvider(r)
}

func clientIdentity(r *http.Request, settings Settings) string {
	id := strings.Join(r.Header.Values(HeaderApplicationIdentity), ",")
	if id != "" {
		return id
	}
	id, _ = resolveFirst(r, settings.AdditionalClientIdentityProviders)
	return id
}

// ParseTimeout parses decimal seconds. Negative, NaN and infinite values are
// rejected, as are values too large for a [time.Duration].
func ParseTimeout(s string) (time.Duration, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(secs) || math.IsInf(secs, 0) || secs < 0 {
		return 0, false
	}
	d := secs * float64(time.Second)
	if d >= float64(math.MaxInt64) {
		return 0, false
	}
	return time.Duration(d), true
}

// FormatTimeout formats d as decimal seconds, the inverse of [ParseTimeout].
func FormatTimeout(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}

// RemoteAddress returns the peer IP of r as reported by the transport.
func RemoteAddress(r *http.Request) netip.Addr {
	if ap, err := netip.ParseAddrPort(r.RemoteAddr); err == nil {
		return ap.Addr().Unmap()
	}
	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		host = h
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}
	}
	return addr.Unmap()
}

// FromContext returns the [RequestInfo] published for the current request.
func FromContext(ctx context.Context) (RequestInfo, bool) {
	return flow.GlobalContext[RequestInfo](ctx)
}
