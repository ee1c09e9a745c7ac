package monitoring

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/law-makers/linkmeta/internal/engine"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordStage(t *testing.T) {
	m := NewMetrics(MetricsConfig{})
	m.RecordStage(StageFetch, 10*time.Millisecond, nil)
	m.RecordStage(StageFetch, 10*time.Millisecond, engine.NewEngineError(engine.ErrCodeFetch, "down", nil))
	m.RecordStage(StageImport, time.Millisecond, errors.New("plain"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.stageErrors.WithLabelValues(StageFetch, "FETCH_ERROR")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.stageErrors.WithLabelValues(StageImport, "UNKNOWN")))
}

func TestRecordFetchClasses(t *testing.T) {
	m := NewMetrics(MetricsConfig{})
	m.RecordFetch("static", 200)
	m.RecordFetch("static", 204)
	m.RecordFetch("browser", 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.fetches.WithLabelValues("static", "2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.fetches.WithLabelValues("browser", "none")))
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.RecordStage(StageMatch, time.Second, nil)
	m.RecordExtraction("generic", "ok")
	m.RecordAsset(AssetFailed)
	m.RecordSchemaConflict()
	m.RecordSchemaUpdate()
	assert.Nil(t, m.Registry())
}

func TestHandlerExposesCounters(t *testing.T) {
	m := NewMetrics(MetricsConfig{Namespace: "test"})
	m.RecordExtraction("doubanBook", "ok")
	m.RecordSchemaConflict()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	assert.True(t, strings.Contains(string(body), `test_extractions_total{rule="doubanBook",status="ok"} 1`))
	assert.True(t, strings.Contains(string(body), "test_schema_conflicts_total 1"))
}
