package orcherr

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapAndUnwrap(t *testing.T) {
	cause := fmt.Errorf("boom")
	err := Wrap(ResourceExhausted, "no agents available", cause)

	require.Error(t, err)
	assert.Equal(t, ResourceExhausted, KindOf(err))
	assert.ErrorIs(t, err, cause)
	assert.True(t, Is(err, ResourceExhausted))
	assert.False(t, Is(err, NotFound))
}

func TestKindOfNonOrcherr(t *testing.T) {
	assert.Equal(t, Fatal, KindOf(fmt.Errorf("plain error")))
}

func TestInvalidArgumentf(t *testing.T) {
	err := InvalidArgumentf("size %d out of range", 99)
	assert.Equal(t, InvalidArgument, err.Kind)
	assert.Contains(t, err.Error(), "size 99 out of range")
}
