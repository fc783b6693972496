package env

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowrt/flowrt/typename"
	"github.com/flowrt/flowrt/value"
)

func TestNewDefaultsPoolSize(t *testing.T) {
	e := New(context.Background(), Config{})
	assert.Equal(t, DefaultPoolSize, e.Config().PoolSize)
}

func TestConvertDelegatesToFactory(t *testing.T) {
	e := New(context.Background(), Config{PoolSize: 1})
	v := value.NewOwned(int32(5))
	out, err := e.Convert(v, typename.Of[int64]())
	require.NoError(t, err)
	got, ok := value.Downcast[int64](out)
	require.True(t, ok)
	assert.Equal(t, int64(5), got)
}

func TestGetVarReadsProcessEnv(t *testing.T) {
	require.NoError(t, os.Setenv("FLOWRT_TEST_VAR", "hello"))
	defer os.Unsetenv("FLOWRT_TEST_VAR")

	e := New(context.Background(), Config{PoolSize: 1})
	assert.Equal(t, "hello", e.GetVar("FLOWRT_TEST_VAR"))
	assert.Equal(t, "", e.GetVar("FLOWRT_DOES_NOT_EXIST"))
}

func TestAddTaskAndWait(t *testing.T) {
	e := New(context.Background(), Config{PoolSize: 2})
	done := make(chan struct{}, 1)
	e.AddTask(context.Background(), func(ctx context.Context) error {
		done <- struct{}{}
		return nil
	})
	require.NoError(t, e.Wait())
	select {
	case <-done:
	default:
		t.Fatal("task did not run before Wait returned")
	}
}
