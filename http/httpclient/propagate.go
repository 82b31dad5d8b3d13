// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package httpclient

import (
	"context"
	"net/http"
	"time"

	"github.com/z5labs/webhost/flow"
	"github.com/z5labs/webhost/requestinfo"

	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/trace"
)

type propagateOptions struct {
	identity string
	baggage  []string
}

// PropagateOption configures [Propagate].
type PropagateOption func(*propagateOptions)

// BaggageProperties sends the named ambient string properties as baggage members.
func BaggageProperties(names ...string) PropagateOption {
	return func(po *propagateOptions) {
		po.baggage = append(po.baggage, names...)
	}
}

// Propagate writes the ambient request context onto outbound requests:
//
//   - Request-Timeout from the context deadline, else the inbound request timeout
//   - Request-Priority from the inbound request
//   - Application-Identity set to identity, when non-empty
//   - the distributed context envelope restored from the inbound request
//
// Headers already set on a request are kept.
func Propagate(identity string, opts ...PropagateOption) Option {
	return func(o *options) {
		po := &propagateOptions{identity: identity}
		for _, opt := range opts {
			opt(po)
		}
		o.propagate = po
	}
}

// propagateRoundTripper wraps the instrumented transport so the client span
// is parented by the restored envelope and the propagator writes it out.
type propagateRoundTripper struct {
	base http.RoundTripper
	opts *propagateOptions
}

func (rt *propagateRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	envelope := ctx
	if !trace.SpanContextFromContext(envelope).IsValid() {
		if sc, ok := flow.GlobalContext[trace.SpanContext](ctx); ok {
			envelope = trace.ContextWithRemoteSpanContext(envelope, sc)
		}
	}

	bag := baggage.FromContext(envelope)
	for _, name := range rt.opts.baggage {
		v, ok := flow.StringProperty(ctx, name)
		if !ok {
			continue
		}
		m, err := baggage.NewMemberRaw(name, v)
		if err != nil {
			continue
		}
		next, err := bag.SetMember(m)
		if err != nil {
			continue
		}
		bag = next
	}
	envelope = baggage.ContextWithBaggage(envelope, bag)

	req = req.Clone(envelope)
	setHeaders(ctx, req, rt.opts.identity)
	return rt.base.RoundTrip(req)
}

func setHeaders(ctx context.Context, req *http.Request, identity string) {
	info, hasInfo := requestinfo.FromContext(ctx)

	if req.Header.Get(requestinfo.HeaderRequestTimeout) == "" {
		if deadline, ok := ctx.Deadline(); ok {
			req.Header.Set(requestinfo.HeaderRequestTimeout, requestinfo.FormatTimeout(max(0, time.Until(deadline))))
		} else if hasInfo {
			req.Header.Set(requestinfo.HeaderRequestTimeout, requestinfo.FormatTimeout(info.Timeout))
		}
	}
	if hasInfo && req.Header.Get(requestinfo.HeaderRequestPriority) == "" {
		req.Header.Set(requestinfo.HeaderRequestPriority, info.Priority.String())
	}
	if identity != "" && req.Header.Get(requestinfo.HeaderApplicationIdentity) == "" {
		req.Header.Set(requestinfo.HeaderApplicationIdentity, identity)
	}
}
