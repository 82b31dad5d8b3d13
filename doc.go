// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package webhost runs [net/http] applications inside a hosting environment.
//
// The hosting environment supplies the service url to listen on, the time
// granted for shutdown and the cpu quota throttling is sized from. Every
// request served by the host passes through the same pipeline:
//
//   - panics are recovered, logged and answered with 500
//   - a server span is started with [otelhttp]
//   - the distributed context is restored into the ambient [flow] store
//   - the request is classified and its [requestinfo.RequestInfo] published
//   - the request is admitted by the throttler, unless disabled
//   - user middlewares and, finally, the user handler run
//
// # Basic Usage
//
//	type Config struct {
//	    webhost.Config `config:",squash"`
//	}
//
//	err := webhost.Run(ctx, func(ctx context.Context, cfg Config, b *webhost.Builder) error {
//	    b.HandleFunc("/hello", func(w http.ResponseWriter, r *http.Request) {
//	        info, _ := requestinfo.FromContext(r.Context())
//	        fmt.Fprintln(w, info.Priority)
//	    })
//	    return nil
//	}, config.FromYaml(f))
//
// [otelhttp]: https://pkg.go.dev/go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp
package webhost
