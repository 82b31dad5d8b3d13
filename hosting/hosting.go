// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package hosting describes the environment an application is hosted in.
package hosting

import (
	"net/url"
	"time"

	"github.com/z5labs/webhost/pkg/ptr"
)

// DefaultShutdownTimeout is used when the environment does not configure one.
const DefaultShutdownTimeout = 15 * time.Second

// Environment reports the facts the host adapter needs from the hosting environment.
type Environment interface {
	// ShutdownTimeout is the total time granted to the application for shutdown.
	ShutdownTimeout() time.Duration

	// ServiceURL is the url the application is discoverable at.
	ServiceURL() (*url.URL, bool)

	// CPUQuota is the number of cpu units allotted to the application, if limited.
	CPUQuota() (float64, bool)

	// ApplicationIdentity names the application to the services it calls.
	ApplicationIdentity() string
}

// Config is an [Environment] read from configuration.
type Config struct {
	ShutdownTimeoutValue     *time.Duration `config:"shutdownTimeout"`
	ServiceURLValue          string         `config:"serviceUrl"`
	CPUQuotaValue            *float64       `config:"cpuQuota"`
	ApplicationIdentityValue string         `config:"applicationIdentity"`
}

// ShutdownTimeout implements the [Environment] interface.
func (c Config) ShutdownTimeout() time.Duration {
	return ptr.Or(c.ShutdownTimeoutValue, DefaultShutdownTimeout)
}

// ServiceURL implements the [Environment] interface. A url which does not
// parse or has no host is reported as absent.
func (c Config) ServiceURL() (*url.URL, bool) {
	if c.ServiceURLValue == "" {
		return nil, false
	}
	u, err := url.Parse(c.ServiceURLValue)
	if err != nil || u.Host == "" {
		return nil, false
	}
	return u, true
}

// CPUQuota implements the [Environment] interface.
func (c Config) CPUQuota() (float64, bool) {
	return ptr.Get(c.CPUQuotaValue)
}

// ApplicationIdentity implements the [Environment] interface.
func (c Config) ApplicationIdentity() string {
	return c.ApplicationIdentityValue
}

// Static is an [Environment] built from literal values.
type Static struct {
	Shutdown time.Duration
	URL      *url.URL
	CPU      *float64
	Identity string
}

// ShutdownTimeout implements the [Environment] interface.
func (s Static) ShutdownTimeout() time.Duration {
	if s.Shutdown <= 0 {
		return DefaultShutdownTimeout
	}
	return s.Shutdown
}

// ServiceURL implements the [Environment] interface.
func (s Static) ServiceURL() (*url.URL, bool) {
	return s.URL, s.URL != nil
}

// CPUQuota implements the [Environment] interface.
func (s Static) CPUQuota() (float64, bool) {
	return ptr.Get(s.CPU)
}

// ApplicationIdentity implements the [Environment] interface.
func (s Static) ApplicationIdentity() string {
	return s.Identity
}

// Shutdown timeout reserved for the hosting environment itself.
const (
	shutdownReserve         = 100 * time.Millisecond
	shutdownReserveFraction = 0.05
)

// CutShutdownTimeout returns the part of total the server may spend on a
// graceful shutdown: total minus the smaller of 100ms and 5% of total.
func CutShutdownTimeout(total time.Duration) time.Duration {
	if total <= 0 {
		return 0
	}
	reserve := time.Duration(float64(total) * shutdownReserveFraction)
	if reserve > shutdownReserve {
		reserve = shutdownReserve
	}
	return total - reserve
}

// ListenAddr returns the address to listen on for u: every interface on the
// url's port, or the default port of its scheme.
func ListenAddr(u *url.URL) string {
	port := u.Port()
	if port == "" {
		switch u.Scheme {
		case "https":
			port = "443"
		default:
			port = "80"
		}
	}
	return ":" + port
}
