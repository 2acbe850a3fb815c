package workerpool

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMap_PreservesOrder(t *testing.T) {
	items := []int{1, 2, 3, 4, 5, 6, 7, 8}
	results, err := Map(context.Background(), 3, items, func(_ context.Context, n int) (int, error) {
		return n * n, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 4, 9, 16, 25, 36, 49, 64}, results)
}

func TestMap_PropagatesFirstError(t *testing.T) {
	items := []int{1, 2, 3}
	wantErr := errors.New("boom")
	_, err := Map(context.Background(), 2, items, func(_ context.Context, n int) (int, error) {
		if n == 2 {
			return 0, wantErr
		}
		return n, nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, wantErr)
}

func TestMap_EmptyInput(t *testing.T) {
	results, err := Map(context.Background(), 4, []int{}, func(_ context.Context, n int) (int, error) {
		return n, nil
	})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestMap_DefaultsWorkersWhenNonPositive(t *testing.T) {
	results, err := Map(context.Background(), 0, []int{1, 2, 3}, func(_ context.Context, n int) (int, error) {
		return n + 1, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3, 4}, results)
}
