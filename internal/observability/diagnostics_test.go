package observability_test

import (
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	noopmetric "go.opentelemetry.io/otel/metric/noop"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/Sumatoshi-tech/signalrt/internal/observability"
)

func TestNewDiagnosticsServer_ServesHealthReadyMetrics(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	srv, err := observability.NewDiagnosticsServer(
		"127.0.0.1:0", noopmetric.NewMeterProvider().Meter("test"), nooptrace.NewTracerProvider().Tracer("test"), logger)
	require.NoError(t, err)

	t.Cleanup(func() { _ = srv.Close() })

	base := "http://" + srv.Addr()

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		resp, getErr := http.Get(base + path) //nolint:noctx,bodyclose // test request against a loopback listener
		require.NoError(t, getErr)
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		resp.Body.Close()
	}
}

func TestNewDiagnosticsServer_NilMeterSkipsSchedulerMetrics(t *testing.T) {
	t.Parallel()

	srv, err := observability.NewDiagnosticsServer("127.0.0.1:0", nil, nil, nil)
	require.NoError(t, err)

	t.Cleanup(func() { _ = srv.Close() })

	resp, getErr := http.Get("http://" + srv.Addr() + "/healthz") //nolint:noctx,bodyclose // test request
	require.NoError(t, getErr)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestNewDiagnosticsServer_InvalidAddrErrors(t *testing.T) {
	t.Parallel()

	_, err := observability.NewDiagnosticsServer("not-a-valid-addr", nil, nil, nil)
	require.Error(t, err)
}

func TestDiagnosticsServer_Addr_NonEmpty(t *testing.T) {
	t.Parallel()

	srv, err := observability.NewDiagnosticsServer("127.0.0.1:0", nil, nil, nil)
	require.NoError(t, err)

	t.Cleanup(func() { _ = srv.Close() })

	assert.NotEmpty(t, srv.Addr())

	// give the listener goroutine a moment to be schedulable before close.
	time.Sleep(time.Millisecond)
}
