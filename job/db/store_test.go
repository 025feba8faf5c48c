package db

import (
	"context"
	"testing"

	"cartpilot/job"
	"cartpilot/lib/testutil"

	"github.com/stretchr/testify/require"
)

func TestStore(t *testing.T) {
	setup, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "job/db",
		DbSchema: Schema,
	})
	defer cleanup()
	store := NewStore(setup.DB)

	ctx := context.Background()

	{
		_, err := store.Get(ctx)
		require.ErrorIs(t, err, ErrNoJob)
	}
	{
		j := job.New(job.TypeShopping, "barbora", []job.Item{
			{Name: "Pienas 1l"},
			{Name: "Duona"},
		})
		j.TargetHandle = "barbora-1"
		require.NoError(t, store.Put(ctx, j))

		got, err := store.Get(ctx)
		require.NoError(t, err)
		require.Equal(t, j, got)
	}
	{
		// a second put overwrites the single document
		j := job.New(job.TypePriceCheck, "iki", []job.Item{{Name: "Sviestas"}})
		j.MarkFailed("Sviestas", "no results")
		require.NoError(t, store.Put(ctx, j))

		got, err := store.Get(ctx)
		require.NoError(t, err)
		require.Equal(t, job.TypePriceCheck, got.Type)
		require.Len(t, got.FailedItems, 1)
	}
	{
		require.NoError(t, store.Clear(ctx))
		_, err := store.Get(ctx)
		require.ErrorIs(t, err, ErrNoJob)

		// clearing an empty store is fine
		require.NoError(t, store.Clear(ctx))
	}
}
