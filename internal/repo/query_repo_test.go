package repo_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/rstamps01/rag-app-sub001/internal/model"
	appErr "github.com/rstamps01/rag-app-sub001/internal/pkg/errors"
	"github.com/rstamps01/rag-app-sub001/internal/repo"
	"github.com/rstamps01/rag-app-sub001/internal/testutil"
)

func TestQueryRepoCreateAndGet(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()

	queries := repo.NewQueryRepo(db)
	rec := &model.QueryRecord{
		ID:         uuid.NewString(),
		Query:      "how many vacation days?",
		Department: model.DepartmentHR,
		Answer:     "25 days",
		Model:      "mistral",
		DurationMs: 1234,
		GPU:        true,
		Ctime:      time.Now().UnixMilli(),
		Sources: []model.QuerySource{
			{DocumentID: "doc-1", Filename: "policy.txt", Score: 0.91, Snippet: "vacation policy", ChunkIndex: 2},
			{DocumentID: "doc-2", Filename: "handbook.txt", Score: 0.77, Snippet: "time off", ChunkIndex: 0},
		},
	}
	require.NoError(t, queries.Create(context.Background(), rec))

	fetched, err := queries.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	require.Equal(t, rec.Answer, fetched.Answer)
	require.Equal(t, model.DepartmentHR, fetched.Department)
	require.Len(t, fetched.Sources, 2)
	// Source ranking survives the round trip.
	require.Equal(t, "doc-1", fetched.Sources[0].DocumentID)
	require.Equal(t, "doc-2", fetched.Sources[1].DocumentID)

	_, err = queries.Get(context.Background(), uuid.NewString())
	require.ErrorIs(t, err, appErr.ErrNotFound)
}

func TestQueryRepoListByDepartment(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()

	queries := repo.NewQueryRepo(db)
	hrRec := &model.QueryRecord{
		ID: uuid.NewString(), Query: "q1", Department: model.DepartmentHR,
		Answer: "a1", Model: "m", Ctime: time.Now().UnixMilli(),
	}
	itRec := &model.QueryRecord{
		ID: uuid.NewString(), Query: "q2", Department: model.DepartmentIT,
		Answer: "a2", Model: "m", Ctime: time.Now().UnixMilli(),
	}
	require.NoError(t, queries.Create(context.Background(), hrRec))
	require.NoError(t, queries.Create(context.Background(), itRec))

	listed, err := queries.List(context.Background(), "HR", 100, 0)
	require.NoError(t, err)
	seen := map[string]bool{}
	for _, rec := range listed {
		require.Equal(t, model.DepartmentHR, rec.Department)
		seen[rec.ID] = true
	}
	require.True(t, seen[hrRec.ID])
	require.False(t, seen[itRec.ID])
}
