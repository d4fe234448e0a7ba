package server

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type okHandler struct{}

func (okHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }

func TestStartRejectsNilChannel(t *testing.T) {
	_, _, err := Start(context.Background(), Config{})
	require.ErrorIs(t, err, ErrNilChannel)
}

func TestStartServesChannelRouteAndShutsDownOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	addr := fmt.Sprintf("127.0.0.1:%d", 38412)
	srv, errCh, err := Start(ctx, Config{ListenAddr: addr, Channel: okHandler{}})
	require.NoError(t, err)
	require.NotNil(t, srv)

	time.Sleep(50 * time.Millisecond)
	resp, err := http.Get("http://" + addr + "/channel")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case <-errCh:
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down in time")
	}
}
