package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserve(t *testing.T) {
	r := New()
	finished := time.Unix(1700000000, 0)

	r.Observe(Run{Result: ResultSuccess, Services: 3, Changed: 2, Puts: 2, Deletes: 1, Duration: 200 * time.Millisecond, Finished: finished})
	r.Observe(Run{Result: ResultError, Kind: "StoreUnavailable", Services: 99, Duration: time.Second, Finished: finished.Add(time.Minute)})

	assert.Equal(t, 1.0, testutil.ToFloat64(r.runs.WithLabelValues(ResultSuccess, "")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.runs.WithLabelValues(ResultError, "StoreUnavailable")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.services), "failed runs must not update the service gauge")
	assert.Equal(t, 2.0, testutil.ToFloat64(r.changes))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.storeWrites.WithLabelValues("put")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.storeWrites.WithLabelValues("delete")))
	assert.Equal(t, float64(finished.Unix()), testutil.ToFloat64(r.lastSuccess))
}

func TestWriteTextfile(t *testing.T) {
	r := New()
	r.Observe(Run{Result: ResultSuccess, Services: 2, Duration: time.Millisecond, Finished: time.Now()})

	path := filepath.Join(t.TempDir(), "vong.prom")
	require.NoError(t, r.WriteTextfile(path))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(b)
	for _, name := range []string{"vong_runs_total", "vong_run_duration_seconds", "vong_registry_services 2"} {
		assert.True(t, strings.Contains(out, name), "textfile missing %q:\n%s", name, out)
	}
}

func TestWriteTextfile_BadPath(t *testing.T) {
	err := New().WriteTextfile(filepath.Join(t.TempDir(), "missing", "vong.prom"))
	require.Error(t, err)
}
