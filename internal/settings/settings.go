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

// Package settings provides the site-wide settings consumed by the gate and
// a time-bounded cache in front of their persistent store.
package settings

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Keys under which the settings are persisted.
const (
	KeyUnderConstruction  = "site_under_construction"
	KeyPasswordEnabled    = "site_password_enabled"
	KeyPassword           = "site_password"
	KeyMaintenanceMessage = "site_maintenance_message"
)

// Keys lists all persisted keys in a stable order.
var Keys = []string{
	KeyUnderConstruction,
	KeyPasswordEnabled,
	KeyPassword,
	KeyMaintenanceMessage,
}

// ErrMalformed reports a persisted value that cannot be interpreted.
var ErrMalformed = errors.New("malformed setting")

// Settings is a consistent snapshot of the gate-relevant site settings.
type Settings struct {
	// UnderConstruction enables maintenance mode.
	UnderConstruction bool
	// PasswordEnabled enables password protection.
	PasswordEnabled bool
	// Password is the shared site password.
	Password string
	// MaintenanceMessage is markdown shown on the maintenance page.
	MaintenanceMessage string
}

// Source loads the current settings.
type Source interface {
	Load(ctx context.Context) (Settings, error)
}

// Store is a Source that can also persist settings.
type Store interface {
	Source
	Save(ctx context.Context, s Settings) error
}

// Parse interprets raw key/value pairs. Absent keys take their zero value;
// unknown keys are ignored. Booleans that do not parse yield ErrMalformed.
func Parse(values map[string]string) (Settings, error) {
	var s Settings
	var err error
	if s.UnderConstruction, err = parseBool(values, KeyUnderConstruction); err != nil {
		return Settings{}, err
	}
	if s.PasswordEnabled, err = parseBool(values, KeyPasswordEnabled); err != nil {
		return Settings{}, err
	}
	s.Password = values[KeyPassword]
	s.MaintenanceMessage = values[KeyMaintenanceMessage]
	return s, nil
}

// Values returns the persisted representation of s.
func (s Settings) Values() map[string]string {
	return map[string]string{
		KeyUnderConstruction:  strconv.FormatBool(s.UnderConstruction),
		KeyPasswordEnabled:    strconv.FormatBool(s.PasswordEnabled),
		KeyPassword:           s.Password,
		KeyMaintenanceMessage: s.MaintenanceMessage,
	}
}

func parseBool(values map[string]string, key string) (bool, error) {
	v, ok := values[key]
	if !ok {
		return false, nil
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%w: %s=%q", ErrMalformed, key, v)
	}
	return b, nil
}
