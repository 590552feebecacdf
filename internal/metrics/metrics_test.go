package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_IndependentRegistries(t *testing.T) {
	a := New()
	b := New()

	a.BlacklistAdditions.Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(a.BlacklistAdditions))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.BlacklistAdditions))
}

func TestObserveMigration(t *testing.T) {
	m := New()

	m.ObserveMigration("AddUniqueIdConstraint", 10*time.Millisecond)
	m.ObserveMigration("AddUniqueIdConstraint", 20*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.MigrationsApplied.WithLabelValues("AddUniqueIdConstraint")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.MigrationDuration))
}

func TestWriteToTextfile(t *testing.T) {
	m := New()
	m.BackupsCreated.WithLabelValues("startup").Inc()

	path := filepath.Join(t.TempDir(), "transhist.prom")
	require.NoError(t, m.WriteToTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `transhist_backups_created_total{type="startup"} 1`)
}
