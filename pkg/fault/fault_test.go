package fault

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParamError(t *testing.T) {
	err := Param(ErrInvalidConfiguration, "r_reference", 0.0, "must be positive")

	assert.True(t, errors.Is(err, ErrInvalidConfiguration))
	assert.False(t, errors.Is(err, ErrDevice))
	assert.Equal(t, "invalid configuration: r_reference=0: must be positive", err.Error())

	var pe *ParamError
	require.True(t, errors.As(fmt.Errorf("setup: %w", err), &pe))
	assert.Equal(t, "r_reference", pe.Param)
}

func TestParamError_NoValue(t *testing.T) {
	err := Param(ErrInvalidChannelSpec, "channels", nil, "empty request")
	assert.Equal(t, "invalid channel spec: channels: empty request", err.Error())
}

func TestDeviceError(t *testing.T) {
	err := Device("read_cycle", io.ErrUnexpectedEOF)

	assert.True(t, errors.Is(err, ErrDevice))
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
	assert.Equal(t, "device error: read_cycle: unexpected EOF", err.Error())
}

func TestDeviceError_Nil(t *testing.T) {
	assert.NoError(t, Device("close", nil))
}

func TestDeviceError_NoDoubleWrap(t *testing.T) {
	inner := Device("open", io.EOF)
	outer := Device("open", inner)
	assert.Same(t, inner, outer)
}
