// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/z5labs/webhost"
	"github.com/z5labs/webhost/config"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

//go:embed default_config.yaml
var defaultConfig []byte

const envPrefix = "WEBHOST_"

func run(args ...string) error {
	cmd := newRootCmd()
	cmd.SetArgs(args)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return cmd.ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "webhost",
		Short:         "Host HTTP applications behind an ambient request pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd())
	return root
}

func newServeCmd() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the demo application until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			srcs, err := configSources(configFile)
			if err != nil {
				return err
			}

			zlog, err := zap.NewProduction()
			if err != nil {
				return err
			}
			defer zlog.Sync()

			a := &app{zlog: zlog}
			err = webhost.Run(cmd.Context(), a.setup, srcs...)

			return errors.Join(err, a.close(context.Background()))
		},
	}

	cmd.Flags().StringVar(&configFile, "config", "", "yaml config file, rendered as a text/template")
	return cmd
}

func configSources(path string) ([]config.Source, error) {
	srcs := []config.Source{
		config.FromYaml(config.RenderTextTemplate(bytes.NewReader(defaultConfig))),
	}
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		srcs = append(srcs, config.FromYaml(config.RenderTextTemplate(f)))
	}
	srcs = append(srcs, config.FromEnv(config.EnvPrefix(envPrefix)))
	return srcs, nil
}
