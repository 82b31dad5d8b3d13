// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package maskslog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

func ExampleKeys() {
	var buf bytes.Buffer

	h := NewHandler(
		slog.NewJSONHandler(&buf, &slog.HandlerOptions{}),
		Keys("request.client_identity"),
	)
	logger := slog.New(h)

	logger.Info(
		"request classified",
		slog.Group("request",
			slog.String("priority", "High"),
			slog.String("client_identity", "billing"),
		),
	)

	var record struct {
		Request struct {
			Priority       string `json:"priority"`
			ClientIdentity string `json:"client_identity"`
		} `json:"request"`
	}
	err := json.Unmarshal(buf.Bytes(), &record)
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(record.Request.Priority)
	fmt.Print(record.Request.ClientIdentity)
	// Output: High
	// ****
}

func ExampleAttr() {
	var buf bytes.Buffer

	h := NewHandler(
		slog.NewJSONHandler(&buf, &slog.HandlerOptions{}),
		Attr("upstream.url", func(a slog.Attr) slog.Attr {
			u, _, _ := strings.Cut(a.Value.String(), "?")
			return slog.String(a.Key, u)
		}),
	)
	logger := slog.New(h).WithGroup("upstream")

	logger.Info("calling upstream", slog.String("url", "http://billing/invoices?token=abc"))

	var record struct {
		Upstream struct {
			URL string `json:"url"`
		} `json:"upstream"`
	}
	err := json.Unmarshal(buf.Bytes(), &record)
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Print(record.Upstream.URL)
	// Output: http://billing/invoices
}

func ExampleMessage() {
	var buf bytes.Buffer

	h := NewHandler(
		slog.NewJSONHandler(&buf, &slog.HandlerOptions{}),
		Message(func(s string) string {
			return strings.ReplaceAll(s, "billing", "****")
		}),
	)
	logger := slog.New(h)

	logger.Info("rejected request from billing")

	var record struct {
		Message string `json:"msg"`
	}
	err := json.Unmarshal(buf.Bytes(), &record)
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Print(record.Message)
	// Output: rejected request from ****
}
