package seed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zfogg/daybook/internal/models"
	"github.com/zfogg/daybook/internal/testutil"
)

func count(t *testing.T, s *Seeder, model interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, s.db.Model(model).Count(&n).Error)
	return n
}

func TestSeedUser(t *testing.T) {
	db := testutil.NewDB(t)
	user := testutil.CreateUser(t, db, "ada")
	s := NewSeeder(db, 42)

	sum, err := s.SeedUser(context.Background(), user, Options{ProgressItems: 8, Commitments: 3, Events: 6, Days: 21})
	require.NoError(t, err)

	assert.Equal(t, 8, sum.ProgressItems)
	assert.Equal(t, 3, sum.Commitments)
	assert.Equal(t, 6, sum.TimelineEvents)
	assert.Positive(t, sum.CommitmentLogs)
	assert.Equal(t, int64(sum.CommitmentLogs), count(t, s, &models.CommitmentLog{}))
	assert.Equal(t, int64(8), count(t, s, &models.ProgressItem{}))
}

func TestSeedTestIsIdempotent(t *testing.T) {
	db := testutil.NewDB(t)
	s := NewSeeder(db, 1)
	ctx := context.Background()

	sum, err := s.SeedTest(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Users)

	again, err := s.SeedTest(ctx)
	require.NoError(t, err)
	assert.Zero(t, again.Users)
	assert.Equal(t, int64(3), count(t, s, &models.User{}))
}

func TestClean(t *testing.T) {
	db := testutil.NewDB(t)
	s := NewSeeder(db, 7)
	ctx := context.Background()

	keep := testutil.CreateUser(t, db, "keeper")
	require.NoError(t, db.Model(keep).Update("email", "keeper@mail.test").Error)

	_, err := s.SeedDev(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, int64(3), count(t, s, &models.User{}))

	removed, err := s.Clean(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)
	assert.Equal(t, int64(1), count(t, s, &models.User{}))
	assert.Zero(t, count(t, s, &models.ProgressItem{}))
	assert.Zero(t, count(t, s, &models.CommitmentLog{}))
}
