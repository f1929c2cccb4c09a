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

// Command sitegatectl manages the gate's site settings and mints access
// tokens for debugging.
//
// Usage:
//
//	sitegatectl [--db PATH | --redis ADDR | --mysql DSN] show
//	sitegatectl [--db PATH | --redis ADDR | --mysql DSN] set [--maintenance=BOOL] [--password-enabled=BOOL] [--password TEXT] [--message TEXT]
//	sitegatectl token [--ip IP] [--ua AGENT]
//	sitegatectl verify [--ip IP] [--ua AGENT] [--window DURATION] TOKEN
//
// The signing secret for token and verify is read from SITEGATE_SECRET, and
// the defaults of --algorithm and --window from SITEGATE_SIGNING_ALGORITHM
// and SITEGATE_TOKEN_WINDOW.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	var opts storeOptions
	global := pflag.NewFlagSet("sitegatectl", pflag.ContinueOnError)
	global.SetInterspersed(false)
	opts.addFlags(global)
	global.Usage = func() { usage(global) }
	if err := global.Parse(args); err != nil {
		return err
	}

	rest := global.Args()
	if len(rest) == 0 {
		usage(global)
		return errors.New("missing command")
	}

	cmd, rest := rest[0], rest[1:]
	switch cmd {
	case "show":
		return show(ctx, &opts, rest, out)
	case "set":
		return set(ctx, &opts, rest, out)
	case "token":
		return mint(rest, out)
	case "verify":
		return verify(rest, out)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func usage(fs *pflag.FlagSet) {
	fmt.Fprint(os.Stderr, `sitegatectl manages maintenance mode and password protection.

Commands:
  show     print the current settings
  set      change one or more settings
  token    mint an access token for a client
  verify   check an access token for a client

Global flags:
`)
	fs.PrintDefaults()
}
