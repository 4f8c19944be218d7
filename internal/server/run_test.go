package server

import (
	"context"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/filestage/internal/query"
	"github.com/harrison/filestage/internal/storage"
)

func TestServeShutsDownOnCancel(t *testing.T) {
	stage := storage.NewStage(filepath.Join(t.TempDir(), "temp"), storage.Options{SortListing: true})
	srv, err := New(stage, query.NewEngine(stage, &fileRunner{}), nil, nil, Options{})
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- srv.Serve(ctx, ln, RunOptions{ShutdownTimeout: 2 * time.Second})
	}()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestServeReportsListenerFailure(t *testing.T) {
	stage := storage.NewStage(t.TempDir(), storage.Options{})
	srv, err := New(stage, query.NewEngine(stage, &fileRunner{}), nil, nil, Options{})
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ln.Close()

	err = srv.Serve(context.Background(), ln, RunOptions{})
	assert.Error(t, err)
}
