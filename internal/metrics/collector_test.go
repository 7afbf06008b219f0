package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorCounters(t *testing.T) {
	c := New()

	c.RunStarted("explore")
	c.OutcomeRecorded("explore", "passed")
	c.OutcomeRecorded("explore", "passed")
	c.OutcomeRecorded("explore", "failed")
	c.SetFeaturesDiscovered(7)
	c.AddDuplicateFeatures(2)
	c.SlotFinished("explore", 3*time.Second)
	c.LLMRequest("ok", 200*time.Millisecond)
	c.HTTPRequest("/runs", 200)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.runsTotal.WithLabelValues("explore")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.outcomesTotal.WithLabelValues("explore", "passed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.outcomesTotal.WithLabelValues("explore", "failed")))
	assert.Equal(t, 7.0, testutil.ToFloat64(c.featuresDiscovered))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.featuresDuplicate))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.llmRequestsTotal.WithLabelValues("ok")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.slotDuration))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.httpRequestsTotal.WithLabelValues("/runs", "200")))
}

func TestCollectorsAreIndependent(t *testing.T) {
	a := New()
	b := New()
	a.RunStarted("catalog")
	assert.Equal(t, 0.0, testutil.ToFloat64(b.runsTotal.WithLabelValues("catalog")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := New()
	c.RunStarted("catalog")

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `webswarm_runs_total{mode="catalog"} 1`), string(body))
}
