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

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/deep-rent/sitegate/internal/signer"
	"github.com/deep-rent/sitegate/internal/token"
)

type tokenOptions struct {
	ip        string
	userAgent string
	algorithm string
	window    time.Duration
	envErr    error
}

// addFlags registers the fingerprint and codec flags. The defaults mirror
// what the gate sees for a client that sends no User-Agent, and the
// codec settings of the proxy's environment.
func (o *tokenOptions) addFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.ip, "ip", token.Unknown, "client IP address the token is bound to")
	fs.StringVar(&o.userAgent, "ua", token.Unknown, "client User-Agent the token is bound to")
	alg := os.Getenv("SITEGATE_SIGNING_ALGORITHM")
	if alg == "" {
		alg = signer.DefaultAlgorithm
	}
	fs.StringVar(&o.algorithm, "algorithm", alg, "HMAC hash function")
	window := token.DefaultWindow
	if v := os.Getenv("SITEGATE_TOKEN_WINDOW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			o.envErr = fmt.Errorf("invalid SITEGATE_TOKEN_WINDOW %q", v)
		} else {
			window = d
		}
	}
	fs.DurationVar(&o.window, "window", window, "maximum token age accepted by verify")
}

func (o *tokenOptions) codec(fs *pflag.FlagSet) (*token.Codec, error) {
	if o.envErr != nil && !fs.Changed("window") {
		return nil, o.envErr
	}
	if o.window <= 0 {
		return nil, fmt.Errorf("window must be positive, got %s", o.window)
	}
	alg := signer.ResolveAlgorithm(o.algorithm)
	if alg == nil {
		return nil, fmt.Errorf("unsupported signing algorithm %q", o.algorithm)
	}
	return token.New(
		os.Getenv("SITEGATE_SECRET"),
		token.WithAlgorithm(alg),
		token.WithWindow(o.window),
	)
}

func (o *tokenOptions) fingerprint() token.Fingerprint {
	return token.Fingerprint{IP: o.ip, UserAgent: o.userAgent}
}

func mint(args []string, out io.Writer) error {
	var opts tokenOptions
	fs := pflag.NewFlagSet("token", pflag.ContinueOnError)
	opts.addFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	codec, err := opts.codec(fs)
	if err != nil {
		return err
	}
	tok, err := codec.Issue(token.Granted, opts.fingerprint())
	if err != nil {
		return err
	}
	fmt.Fprintln(out, tok)
	return nil
}

func verify(args []string, out io.Writer) error {
	var opts tokenOptions
	fs := pflag.NewFlagSet("verify", pflag.ContinueOnError)
	opts.addFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("expected exactly one token")
	}

	codec, err := opts.codec(fs)
	if err != nil {
		return err
	}
	v, ok := codec.Verify(fs.Arg(0), opts.fingerprint())
	if !ok {
		return errors.New("token is invalid, expired, or bound to another client")
	}
	fmt.Fprintln(out, v)
	return nil
}
