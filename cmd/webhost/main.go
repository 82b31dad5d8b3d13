// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Command webhost serves a small demo application through the webhost
// request pipeline.
package main

import (
	"fmt"
	"os"
)

func main() {
	err := run(os.Args[1:]...)
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
