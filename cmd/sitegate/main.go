// Copyright (c) 2025-present deep.rent GmbH (https://www.deep.rent)
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command sitegate runs the access gate in front of a website.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/deep-rent/nexus/app"
	"github.com/deep-rent/nexus/log"
	"github.com/spf13/pflag"

	"github.com/deep-rent/sitegate/internal/config"
)

// version is set at build time.
var version = "dev"

func main() {
	flags := pflag.NewFlagSet("sitegate", pflag.ContinueOnError)
	showVersion := flags.BoolP("version", "v", false, "print the version and exit")
	if err := flags.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}
	if *showVersion {
		fmt.Println("sitegate", version)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "sitegate:", err)
		os.Exit(1)
	}

	logger := log.New(
		log.WithLevel(cfg.LogLevel),
	)
	logger.Info("Starting sitegate", "version", version)

	runnable := func(ctx context.Context) error {
		return run(ctx, cfg, logger)
	}

	if err := app.Run(runnable, app.WithLogger(logger)); err != nil {
		logger.Error("Application failed", "error", err)
		os.Exit(1)
	}
}
