package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url) //nolint:noctx // test helper
	require.NoError(t, err)
	defer func() {
		if errInner := resp.Body.Close(); errInner != nil {
			t.Log(errInner)
		}
	}()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestRouterServesMetricsAndHealth(t *testing.T) {
	t.Parallel()

	m := New()
	m.ObservePage(PageSaved, 100)
	ts := httptest.NewServer(m.Router(nil))
	defer ts.Close()

	code, body := get(t, ts.URL+"/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok\n", body)

	code, body = get(t, ts.URL+"/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `catalog_pages_fetched_total{status="saved"} 1`)
	assert.Contains(t, body, "catalog_page_bytes_total 100")

	code, _ = get(t, ts.URL+"/missing")
	assert.Equal(t, http.StatusNotFound, code)

	assert.InDelta(t, 2, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("GET", "200")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("GET", "404")), 0)
}

func TestServeBindsAndStops(t *testing.T) {
	t.Parallel()

	m := New()
	stop, err := m.Serve("127.0.0.1:0", nil)
	require.NoError(t, err)
	stop()

	_, err = m.Serve("not-an-address", nil)
	require.Error(t, err)
}
