package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New("kwharvest")

	m.ObserveLookup("amazon", OutcomeOK, 200*time.Millisecond)
	m.ObserveLookup("amazon", OutcomeOK, 0)
	m.ObserveLookup("ebay", OutcomeNetworkError, time.Second)
	m.ObserveRotation(nil)
	m.ObserveRotation(errors.New("refused"))
	m.AddKeywords("amazon", 2, 7)
	m.LedgerAppended.WithLabelValues("amazon", "en").Add(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.LookupsTotal.WithLabelValues("amazon", OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LookupsTotal.WithLabelValues("ebay", OutcomeNetworkError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RotationsTotal.WithLabelValues(OutcomeProxyUnavailable)))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.KeywordsTotal.WithLabelValues("amazon", "2")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.LedgerAppended.WithLabelValues("amazon", "en")))
}

func TestMetrics_WriteTextfile(t *testing.T) {
	m := New("kwharvest")
	m.ObserveLookup("google", OutcomeEmpty, 0)
	m.MarkRun("harvest", time.Unix(1650000000, 0))

	path := filepath.Join(t.TempDir(), "kwharvest.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `kwharvest_lookups_total{engine="google",outcome="empty"} 1`)
	assert.Contains(t, string(data), `kwharvest_last_run_timestamp_seconds{command="harvest"} 1.65e+09`)

	assert.Error(t, m.WriteTextfile(filepath.Join(t.TempDir(), "missing", "x.prom")))
}
