package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.SetEntitiesTotal(5)
	for i := 0; i < 4; i++ {
		m.IncrementCollected()
		m.IncrementSnapshotWrites()
	}
	m.IncrementSkipped("transient")
	m.IncrementRetries()
	m.IncrementRetries()
	m.ObserveFetch(time.Now().Add(-time.Second))
	m.SetAnalysis(4.94, true)

	path := filepath.Join(t.TempDir(), "igbenford.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)

	assert.Contains(t, out, "igbenford_entities_total 5")
	assert.Contains(t, out, "igbenford_entities_processed_total 5")
	assert.Contains(t, out, "igbenford_samples_collected_total 4")
	assert.Contains(t, out, `igbenford_entities_skipped_total{kind="transient"} 1`)
	assert.Contains(t, out, "igbenford_fetch_retries_total 2")
	assert.Contains(t, out, "igbenford_snapshot_writes_total 4")
	assert.Contains(t, out, "igbenford_fetch_duration_seconds_count 1")
	assert.Contains(t, out, "igbenford_chi_squared 4.94")
	assert.Contains(t, out, "igbenford_conforms 1")
}

func TestIndependentRegistries(t *testing.T) {
	a, b := New(), New()
	a.IncrementSkipped("")

	families, err := b.Gatherer().Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == "igbenford_entities_skipped_total" {
			t.Fatalf("skips leaked into a second registry")
		}
	}

	families, err = a.Gatherer().Gather()
	require.NoError(t, err)
	found := false
	for _, f := range families {
		if f.GetName() == "igbenford_entities_skipped_total" {
			found = true
			assert.Equal(t, "unknown", f.GetMetric()[0].GetLabel()[0].GetValue())
		}
	}
	assert.True(t, found)
}
