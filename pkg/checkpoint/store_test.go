package checkpoint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeState(t *testing.T) {
	data, err := encodeState(Checkpoint{ThreadID: "t", Step: 1, State: map[string]any{"status": "CODING"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"status": "CODING"}`, string(data))
}

func TestEncodeStateNegativeStep(t *testing.T) {
	_, err := encodeState(Checkpoint{ThreadID: "t", Step: -1})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotSerializable)
}

func TestEncodeStateNotSerializable(t *testing.T) {
	_, err := encodeState(Checkpoint{ThreadID: "t", Step: 0, State: map[string]any{"ch": make(chan int)}})
	assert.ErrorIs(t, err, ErrNotSerializable)
}
