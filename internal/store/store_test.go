package store

import (
	"context"
	"testing"
	"time"

	"github.com/andresmejia3/verdict/internal/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestStoreIntegration runs the archive round trip against a real Postgres container.
// It requires Docker to be running.
func TestStoreIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("verdict_test"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
		testcontainers.WithLogger(noopLogger{}),
	)
	require.NoError(t, err, "Failed to start postgres container")
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Fatalf("Failed to terminate container: %v", err)
		}
	}()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	// Initialize Store (runs migrations)
	s, err := New(ctx, connStr)
	require.NoError(t, err)
	defer s.Close(ctx)

	run := Run{
		ResultsPath:        "/work/result.json",
		ResultsFingerprint: "abc123",
		ConfigPath:         "configs/resnet18.yaml",
		TopK:               2,
		Total:              5,
		SuccessCount:       3,
		FailCount:          2,
		Classes: []types.ClassMetric{
			{ClassID: 0, ClassName: "cat", Precision: 1, Recall: 0.5, F1: 2.0 / 3, Support: 2},
			{ClassID: 1, ClassName: "dog", Precision: 0.5, Recall: 1, F1: 2.0 / 3, Support: 1},
		},
		Success: []types.Record{
			{Filename: "a.jpg", PredScore: 0.4, PredLabel: 0, PredClass: "cat", GtLabel: 0, GtClass: "cat"},
			{Filename: "b.jpg", PredScore: 0.6, PredLabel: 1, PredClass: "dog", GtLabel: 1, GtClass: "dog"},
		},
		Fail: []types.Record{
			{Filename: "c.jpg", PredScore: 0.2, PredLabel: 1, PredClass: "dog", GtLabel: 0, GtClass: "cat"},
		},
	}

	id, err := s.SaveRun(ctx, run)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)

	got, err := s.GetRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, run.ResultsPath, got.ResultsPath)
	assert.Equal(t, 5, got.Total)
	assert.Equal(t, run.Classes, got.Classes)
	assert.Equal(t, run.Success, got.Success, "examples keep their rank order")
	assert.Equal(t, run.Fail, got.Fail)

	second, err := s.SaveRun(ctx, Run{ResultsPath: "/work/other.json", ResultsFingerprint: "abc123", ConfigPath: "c.yaml"})
	require.NoError(t, err)

	runs, err := s.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Empty(t, runs[0].Classes, "listing does not load details")

	ids, err := s.FindByFingerprint(ctx, "abc123")
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{id, second}, ids)

	_, err = s.GetRun(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrRunNotFound)

	// Duplicate ids roll the whole run back
	_, err = s.SaveRun(ctx, Run{ID: id, ResultsPath: "dup", ConfigPath: "dup"})
	assert.Error(t, err)
	runs, err = s.ListRuns(ctx)
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	require.NoError(t, s.Reset(ctx))
	_, err = s.ListRuns(ctx)
	assert.Error(t, err, "tables are gone after reset")
}

type noopLogger struct{}

func (n noopLogger) Printf(format string, v ...interface{}) {}
