// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package otelslog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/z5labs/webhost/flow"
	"github.com/z5labs/webhost/requestinfo"
)

func ExampleHandler_Handle_request() {
	ctx, scope := flow.Begin(context.Background())
	defer scope.End()

	flow.SetGlobalContext(ctx, requestinfo.RequestInfo{
		Timeout:                   20 * time.Second,
		Priority:                  requestinfo.Critical,
		ClientApplicationIdentity: "billing",
	})

	var buf bytes.Buffer
	logger := New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{}))
	logger.InfoContext(ctx, "classified")

	var record struct {
		Message string `json:"msg"`
		Request struct {
			Priority       string        `json:"priority"`
			Timeout        time.Duration `json:"timeout"`
			ClientIdentity string        `json:"client_identity"`
		} `json:"request"`
	}
	err := json.Unmarshal(buf.Bytes(), &record)
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(record.Message)
	fmt.Println(record.Request.Priority)
	fmt.Println(record.Request.Timeout)
	fmt.Print(record.Request.ClientIdentity)
	// Output: classified
	// Critical
	// 20s
	// billing
}

func ExampleHandler_Handle_outsideRequest() {
	var buf bytes.Buffer
	logger := New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{}))
	logger.InfoContext(context.Background(), "starting")

	var record map[string]any
	err := json.Unmarshal(buf.Bytes(), &record)
	if err != nil {
		fmt.Println(err)
		return
	}
	_, hasRequest := record["request"]
	_, hasOtel := record["otel"]
	fmt.Println(record["msg"])
	fmt.Print(hasRequest, hasOtel)
	// Output: starting
	// false false
}
