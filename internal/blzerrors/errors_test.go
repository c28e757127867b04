package blzerrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotFoundError(t *testing.T) {
	err := NewNotFoundError("react")
	assert.Equal(t, KindNotFound, err.Kind())
	assert.Contains(t, err.Error(), "react")
}

func TestInvalidErrorMessage(t *testing.T) {
	err := NewInvalidError("limit", "0", "must be >= 1")
	assert.Equal(t, `invalid limit "0": must be >= 1`, err.Error())
}

func TestIoErrorUnwrap(t *testing.T) {
	underlying := errors.New("permission denied")
	err := NewIoError("write", "/data/react/llms.txt", underlying)

	var target *IoError
	require.True(t, errors.As(err, &target))
	assert.Same(t, underlying, errors.Unwrap(err))
}

func TestMultiErrorFiltersNil(t *testing.T) {
	merged := NewMultiError([]error{nil, errors.New("a"), nil, errors.New("b")})
	require.NotNil(t, merged)
	assert.Len(t, merged.Errors, 2)
	assert.Equal(t, "2 errors: [a b]", merged.Error())
}

func TestMultiErrorAllNilReturnsNil(t *testing.T) {
	assert.Nil(t, NewMultiError([]error{nil, nil}))
}

func TestMultiErrorSingleUnwraps(t *testing.T) {
	merged := NewMultiError([]error{errors.New("only")})
	require.NotNil(t, merged)
	assert.Equal(t, "only", merged.Error())
}
