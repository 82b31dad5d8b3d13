// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package webhost

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/z5labs/webhost/config"
	"github.com/z5labs/webhost/flow"
	"github.com/z5labs/webhost/hosting"
	"github.com/z5labs/webhost/http/httpflow"
	"github.com/z5labs/webhost/internal/try"
	"github.com/z5labs/webhost/requestinfo"
	"github.com/z5labs/webhost/throttling"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func staticEnv(t *testing.T, rawURL string) hosting.Static {
	u, err := url.Parse(rawURL)
	require.Nil(t, err)
	return hosting.Static{URL: u}
}

func requestInfoHandler(w http.ResponseWriter, r *http.Request) {
	info, ok := requestinfo.FromContext(r.Context())
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	fmt.Fprintf(w, "%s %s %s", info.Priority, info.Timeout, info.ClientApplicationIdentity)
}

func TestBuilder_Build(t *testing.T) {
	t.Run("will return a MissingServiceURLError", func(t *testing.T) {
		t.Run("if the hosting environment has no service url", func(t *testing.T) {
			_, err := NewBuilder(hosting.Static{}).Build(context.Background())

			var merr MissingServiceURLError
			if !assert.ErrorAs(t, err, &merr) {
				return
			}
			if !assert.NotEmpty(t, merr.Error()) {
				return
			}
		})
	})

	t.Run("will return a MissingDefaultProviderError", func(t *testing.T) {
		t.Run("if a default request info provider is removed", func(t *testing.T) {
			_, err := NewBuilder(staticEnv(t, "http://localhost:8080")).
				SetupRequestInfo(func(s requestinfo.Settings) requestinfo.Settings {
					s.DefaultTimeoutProvider = nil
					return s
				}).
				Build(context.Background())

			var merr requestinfo.MissingDefaultProviderError
			if !assert.ErrorAs(t, err, &merr) {
				return
			}
			if !assert.Equal(t, "timeout", merr.Field) {
				return
			}
		})
	})

	t.Run("will return an InvalidConfigError", func(t *testing.T) {
		t.Run("if throttling has no capacity", func(t *testing.T) {
			_, err := NewBuilder(staticEnv(t, "http://localhost:8080")).
				SetupThrottling(func(b *throttling.Builder) {
					b.UseEssentials(throttling.Essentials{})
				}).
				Build(context.Background())

			var ierr throttling.InvalidConfigError
			if !assert.ErrorAs(t, err, &ierr) {
				return
			}
		})
	})

	t.Run("will cut the shutdown timeout", func(t *testing.T) {
		t.Run("of the hosting environment", func(t *testing.T) {
			env := staticEnv(t, "http://localhost:8080")
			env.Shutdown = 10 * time.Second

			rt, err := NewBuilder(env).Build(context.Background())
			require.Nil(t, err)

			if !assert.Equal(t, 10*time.Second-100*time.Millisecond, rt.shutdownTimeout) {
				return
			}
			if !assert.Equal(t, ":8080", rt.addr) {
				return
			}
		})
	})
}

func TestRuntime_ServeHTTP(t *testing.T) {
	t.Run("will publish request info", func(t *testing.T) {
		t.Run("from the well-known headers", func(t *testing.T) {
			rt, err := NewBuilder(staticEnv(t, "http://localhost:8080")).
				HandleFunc("/request-info", requestInfoHandler).
				Build(context.Background())
			require.Nil(t, err)

			r := httptest.NewRequest(http.MethodGet, "/request-info", nil)
			r.Header.Set(requestinfo.HeaderRequestPriority, "Critical")
			r.Header.Set(requestinfo.HeaderRequestTimeout, "20")
			r.Header.Set(requestinfo.HeaderApplicationIdentity, "TestApplication")
			w := httptest.NewRecorder()
			rt.ServeHTTP(w, r)

			if !assert.Equal(t, http.StatusOK, w.Code) {
				return
			}
			if !assert.Equal(t, "Critical 20s TestApplication", w.Body.String()) {
				return
			}
		})

		t.Run("with the ordinary priority by default", func(t *testing.T) {
			rt, err := NewBuilder(staticEnv(t, "http://localhost:8080")).
				HandleFunc("/request-info", requestInfoHandler).
				Build(context.Background())
			require.Nil(t, err)

			w := httptest.NewRecorder()
			rt.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/request-info", nil))

			if !assert.Equal(t, "Ordinary 20s ", w.Body.String()) {
				return
			}
		})
	})

	t.Run("will expose custom contextual properties", func(t *testing.T) {
		t.Run("only to the request which carried them", func(t *testing.T) {
			rt, err := NewBuilder(staticEnv(t, "http://localhost:8080")).
				SetupDistributedContext(func(s httpflow.Settings) httpflow.Settings {
					s.AdditionalActions = append(s.AdditionalActions, httpflow.QueryAction("custom-contextual", "custom-contextual"))
					return s
				}).
				HandleFunc("/context", func(w http.ResponseWriter, r *http.Request) {
					v, _ := flow.StringProperty(r.Context(), r.URL.Query().Get("name"))
					io.WriteString(w, v)
				}).
				Build(context.Background())
			require.Nil(t, err)

			w := httptest.NewRecorder()
			rt.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/context?name=custom-contextual&custom-contextual=some-value", nil))
			if !assert.Equal(t, "some-value", w.Body.String()) {
				return
			}

			w = httptest.NewRecorder()
			rt.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/context?name=custom-contextual", nil))
			if !assert.Empty(t, w.Body.String()) {
				return
			}
		})
	})

	t.Run("will start every request from the root properties", func(t *testing.T) {
		t.Run("even if a handler changes them", func(t *testing.T) {
			rt, err := NewBuilder(staticEnv(t, "http://localhost:8080")).
				SetProperty("tenant", "default").
				HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
					v, _ := flow.StringProperty(r.Context(), "tenant")
					io.WriteString(w, v)
					flow.SetProperty(r.Context(), "tenant", "changed")
				}).
				Build(context.Background())
			require.Nil(t, err)

			for range 2 {
				w := httptest.NewRecorder()
				rt.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
				if !assert.Equal(t, "default", w.Body.String()) {
					return
				}
			}
		})
	})

	t.Run("will run user middlewares", func(t *testing.T) {
		t.Run("after the built-in ones and in registration order", func(t *testing.T) {
			var order []string
			mw := func(name string) func(http.Handler) http.Handler {
				return func(next http.Handler) http.Handler {
					return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
						_, ok := requestinfo.FromContext(r.Context())
						order = append(order, fmt.Sprintf("%s:%v", name, ok))
						next.ServeHTTP(w, r)
					})
				}
			}

			rt, err := NewBuilder(staticEnv(t, "http://localhost:8080")).
				Use(mw("first")).
				Use(mw("second")).
				HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {}).
				Build(context.Background())
			require.Nil(t, err)

			rt.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
			if !assert.Equal(t, []string{"first:true", "second:true"}, order) {
				return
			}
		})
	})

	t.Run("will strip the base path", func(t *testing.T) {
		t.Run("of the service url", func(t *testing.T) {
			rt, err := NewBuilder(staticEnv(t, "http://localhost:8080/api/")).
				HandleFunc("/hello", func(w http.ResponseWriter, r *http.Request) {
					io.WriteString(w, "hello")
				}).
				Build(context.Background())
			require.Nil(t, err)

			w := httptest.NewRecorder()
			rt.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/hello", nil))
			if !assert.Equal(t, "hello", w.Body.String()) {
				return
			}
		})
	})

	t.Run("will return 500", func(t *testing.T) {
		t.Run("if the handler panics", func(t *testing.T) {
			var buf bytes.Buffer
			rt, err := NewBuilder(staticEnv(t, "http://localhost:8080")).
				Logger(slog.New(slog.NewJSONHandler(&buf, nil))).
				HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
					panic("boom")
				}).
				Build(context.Background())
			require.Nil(t, err)

			w := httptest.NewRecorder()
			rt.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

			if !assert.Equal(t, http.StatusInternalServerError, w.Code) {
				return
			}
			if !assert.Contains(t, buf.String(), "recovered from panic while serving request") {
				return
			}
		})

		t.Run("if a request info provider panics", func(t *testing.T) {
			rt, err := NewBuilder(staticEnv(t, "http://localhost:8080")).
				SetupRequestInfo(func(s requestinfo.Settings) requestinfo.Settings {
					s.AdditionalPriorityProviders = append(s.AdditionalPriorityProviders, requestinfo.ProviderFunc[requestinfo.Priority](func(*http.Request) (requestinfo.Priority, bool) {
						panic("provider failed")
					}))
					return s
				}).
				HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {}).
				Build(context.Background())
			require.Nil(t, err)

			w := httptest.NewRecorder()
			rt.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

			if !assert.Equal(t, http.StatusInternalServerError, w.Code) {
				return
			}
		})
	})

	t.Run("will reject requests", func(t *testing.T) {
		t.Run("if throttling capacity is exhausted", func(t *testing.T) {
			entered := make(chan struct{})
			unblock := make(chan struct{})

			rt, err := NewBuilder(staticEnv(t, "http://localhost:8080")).
				SetupThrottling(func(b *throttling.Builder) {
					b.UseEssentials(throttling.Essentials{CapacityLimit: 1})
				}).
				HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
					close(entered)
					<-unblock
				}).
				Build(context.Background())
			require.Nil(t, err)

			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				defer wg.Done()
				rt.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
			}()
			<-entered

			w := httptest.NewRecorder()
			rt.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
			close(unblock)
			wg.Wait()

			if !assert.Equal(t, http.StatusTooManyRequests, w.Code) {
				return
			}
		})
	})

	t.Run("will serve health endpoints", func(t *testing.T) {
		t.Run("outside of the request pipeline", func(t *testing.T) {
			rt, err := NewBuilder(staticEnv(t, "http://localhost:8080")).Build(context.Background())
			require.Nil(t, err)

			w := httptest.NewRecorder()
			rt.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/readiness", nil))
			if !assert.Equal(t, http.StatusServiceUnavailable, w.Code) {
				return
			}

			w = httptest.NewRecorder()
			rt.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/health/liveness", nil))
			if !assert.Equal(t, http.StatusMethodNotAllowed, w.Code) {
				return
			}
		})
	})
}

func TestRuntime_Run(t *testing.T) {
	t.Run("will serve requests", func(t *testing.T) {
		t.Run("until the context is cancelled", func(t *testing.T) {
			var warmedUp []string
			rt, err := NewBuilder(staticEnv(t, "http://localhost:8080")).
				WarmupServices(func(ctx context.Context) error {
					warmedUp = append(warmedUp, "services")
					return nil
				}).
				Warmup(func(ctx context.Context) error {
					warmedUp = append(warmedUp, "application")
					return nil
				}).
				HandleFunc("/request-info", requestInfoHandler).
				Build(context.Background())
			require.Nil(t, err)

			addrCh := make(chan string, 1)
			rt.listen = func(network, _ string) (net.Listener, error) {
				ls, err := net.Listen(network, "127.0.0.1:0")
				if err == nil {
					addrCh <- ls.Addr().String()
				}
				return ls, err
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			errCh := make(chan error, 1)
			go func() {
				errCh <- rt.Run(ctx)
			}()

			addr := <-addrCh
			require.Eventually(t, func() bool { return rt.Ready(ctx) }, 5*time.Second, 10*time.Millisecond)

			req, err := http.NewRequest(http.MethodGet, "http://"+addr+"/request-info", nil)
			require.Nil(t, err)
			req.Header.Set(requestinfo.HeaderRequestPriority, "low")

			resp, err := http.DefaultClient.Do(req)
			require.Nil(t, err)
			defer resp.Body.Close()

			b, err := io.ReadAll(resp.Body)
			require.Nil(t, err)
			if !assert.True(t, strings.HasPrefix(string(b), "Low ")) {
				return
			}

			cancel()
			if !assert.Nil(t, <-errCh) {
				return
			}
			if !assert.Equal(t, []string{"services", "application"}, warmedUp) {
				return
			}
		})
	})

	t.Run("will return a WarmupError", func(t *testing.T) {
		t.Run("if a service warmup fails", func(t *testing.T) {
			warmupErr := errors.New("failed")
			rt, err := NewBuilder(staticEnv(t, "http://localhost:8080")).
				WarmupServices(func(ctx context.Context) error {
					return warmupErr
				}).
				Build(context.Background())
			require.Nil(t, err)

			err = rt.Run(context.Background())

			var werr WarmupError
			if !assert.ErrorAs(t, err, &werr) {
				return
			}
			if !assert.ErrorIs(t, err, warmupErr) {
				return
			}
		})

		t.Run("if an application warmup panics", func(t *testing.T) {
			rt, err := NewBuilder(staticEnv(t, "http://localhost:8080")).
				Warmup(func(ctx context.Context) error {
					panic("warmup panicked")
				}).
				Build(context.Background())
			require.Nil(t, err)
			rt.listen = func(network, _ string) (net.Listener, error) {
				return net.Listen(network, "127.0.0.1:0")
			}

			err = rt.Run(context.Background())

			var perr try.PanicError
			if !assert.ErrorAs(t, err, &perr) {
				return
			}
			if !assert.False(t, rt.Ready(context.Background())) {
				return
			}
		})
	})
}

type testConfig struct {
	Config `config:",squash"`

	Greeting string `config:"greeting"`
}

func TestRun(t *testing.T) {
	t.Run("will return a ConfigReadError", func(t *testing.T) {
		t.Run("if a config source fails", func(t *testing.T) {
			srcErr := errors.New("failed")
			err := Run(
				context.Background(),
				func(context.Context, testConfig, *Builder) error { return nil },
				config.SourceFunc(func(config.Store) error { return srcErr }),
			)

			var cerr ConfigReadError
			if !assert.ErrorAs(t, err, &cerr) {
				return
			}
			if !assert.ErrorIs(t, err, srcErr) {
				return
			}
		})
	})

	t.Run("will return a ConfigUnmarshalError", func(t *testing.T) {
		t.Run("if the config does not fit the config type", func(t *testing.T) {
			err := Run(
				context.Background(),
				func(context.Context, testConfig, *Builder) error { return nil },
				config.Map{"hosting": map[string]any{"shutdownTimeout": "soon"}},
			)

			var cerr ConfigUnmarshalError
			if !assert.ErrorAs(t, err, &cerr) {
				return
			}
		})
	})

	t.Run("will return an AppBuildError", func(t *testing.T) {
		t.Run("if setup fails", func(t *testing.T) {
			setupErr := errors.New("failed")
			err := Run(
				context.Background(),
				func(context.Context, testConfig, *Builder) error { return setupErr },
			)

			var berr AppBuildError
			if !assert.ErrorAs(t, err, &berr) {
				return
			}
			if !assert.ErrorIs(t, err, setupErr) {
				return
			}
		})

		t.Run("if the service url is missing", func(t *testing.T) {
			err := Run(
				context.Background(),
				func(context.Context, testConfig, *Builder) error { return nil },
			)

			var merr MissingServiceURLError
			if !assert.ErrorAs(t, err, &merr) {
				return
			}
		})
	})

	t.Run("will return a PanicError", func(t *testing.T) {
		t.Run("if setup panics", func(t *testing.T) {
			err := Run(
				context.Background(),
				func(context.Context, testConfig, *Builder) error { panic("setup panicked") },
			)

			var perr try.PanicError
			if !assert.ErrorAs(t, err, &perr) {
				return
			}
		})
	})

	t.Run("will pass the unmarshalled config to setup", func(t *testing.T) {
		t.Run("and stop once the context is cancelled", func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			var cfg testConfig
			err := Run(
				ctx,
				func(_ context.Context, c testConfig, _ *Builder) error {
					cfg = c
					return nil
				},
				config.Map{
					"greeting": "hello",
					"hosting": map[string]any{
						"serviceUrl": "http://127.0.0.1:0",
					},
					"logging": map[string]any{
						"level": "debug",
					},
				},
			)
			if !assert.Nil(t, err) {
				return
			}
			if !assert.Equal(t, "hello", cfg.Greeting) {
				return
			}
			if !assert.Equal(t, slog.LevelDebug, cfg.Logging.Level) {
				return
			}
			if !assert.Equal(t, "http://127.0.0.1:0", cfg.Hosting.ServiceURLValue) {
				return
			}
		})
	})
}
