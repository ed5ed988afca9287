package names_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yanet-platform/yanet2go/internal/names"
	"github.com/yanet-platform/yanet2go/internal/xerrors"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	field, err := names.Encode("route", names.StandardWidth)
	require.NoError(t, err)
	require.Len(t, field, names.StandardWidth)
	require.Equal(t, "route", names.Decode(field))
}

func TestEncodeRejectsEmpty(t *testing.T) {
	_, err := names.Encode("", names.StandardWidth)
	require.ErrorIs(t, err, xerrors.ErrInvalidArgument)
}

func TestEncodeRejectsOverlong(t *testing.T) {
	_, err := names.Encode(strings.Repeat("a", names.CounterWidth), names.CounterWidth)
	require.ErrorIs(t, err, xerrors.ErrInvalidArgument)
}

func TestSanitizeStripsNonASCII(t *testing.T) {
	require.Equal(t, "route-", names.Sanitize("route-é"))
}
