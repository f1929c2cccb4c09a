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

package gateway_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/deep-rent/nexus/middleware"
	"github.com/deep-rent/nexus/testutil/ports"
	"github.com/deep-rent/sitegate/internal/gateway"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGateway_Lifecycle(t *testing.T) {
	t.Setenv("NO_PROXY", "127.0.0.1,localhost")

	host := "127.0.0.1"
	port := ports.FreeT(t)

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(middleware.GetRequestID(r.Context())))
	})

	gw := gateway.New(
		gateway.WithHost(host),
		gateway.WithPort(port),
		gateway.WithHandler(h),
		gateway.WithMiddleware(middleware.RequestID(), middleware.Volatile()),
		gateway.WithReadTimeout(time.Second),
		gateway.WithMaxHeaderBytes(4<<10),
		gateway.WithLogger(slog.New(slog.DiscardHandler)),
	)
	assert.Equal(t, fmt.Sprintf("%s:%d", host, port), gw.Addr())

	errCh := make(chan error, 1)
	go func() {
		errCh <- gw.Start()
	}()

	ports.WaitT(t, host, port)

	res, err := http.Get(fmt.Sprintf("http://%s:%d/", host, port))
	require.NoError(t, err)
	body, _ := io.ReadAll(res.Body)
	_ = res.Body.Close()

	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, res.Header.Get("X-Request-ID"), string(body))
	assert.NotEmpty(t, body)
	assert.Contains(t, res.Header.Get("Cache-Control"), "no-store")

	big, err := http.NewRequest(http.MethodGet, fmt.Sprintf("http://%s:%d/", host, port), nil)
	require.NoError(t, err)
	big.Header.Set("X-Padding", strings.Repeat("a", 16<<10))
	res, err = http.DefaultClient.Do(big)
	require.NoError(t, err)
	_ = res.Body.Close()
	assert.Equal(t, http.StatusRequestHeaderFieldsTooLarge, res.StatusCode)

	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	defer cancel()
	require.NoError(t, gw.Stop(ctx))

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start() did not return after Stop()")
	}
}

func TestGateway_StartError(t *testing.T) {
	gw := gateway.New(
		gateway.WithHost("256.0.0.1"),
		gateway.WithPort(1),
		gateway.WithLogger(slog.New(slog.DiscardHandler)),
	)
	assert.Error(t, gw.Start())
}

func TestWithPort_OutOfRange(t *testing.T) {
	gw := gateway.New(gateway.WithPort(70000))
	assert.Equal(t, fmt.Sprintf(":%d", gateway.DefaultPort), gw.Addr())
}
