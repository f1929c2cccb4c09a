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

package gate

import (
	"encoding/base64"
	"strings"
)

// EncodeReturn encodes path for the return query parameter.
func EncodeReturn(path string) string {
	return base64.StdEncoding.EncodeToString([]byte(path))
}

// DecodeReturn decodes a return parameter. It only accepts absolute paths on
// the same site, so the parameter cannot be abused as an open redirect.
func DecodeReturn(v string) (string, bool) {
	if v == "" {
		return "", false
	}
	b, err := base64.StdEncoding.DecodeString(v)
	if err != nil {
		if b, err = base64.RawURLEncoding.DecodeString(v); err != nil {
			return "", false
		}
	}
	path := string(b)
	if !strings.HasPrefix(path, "/") ||
		strings.HasPrefix(path, "//") ||
		strings.HasPrefix(path, "/\\") ||
		strings.ContainsAny(path, "\r\n") {
		return "", false
	}
	return path, true
}
