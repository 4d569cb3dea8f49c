package pgp

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseFingerprint(t *testing.T) {
	fp, err := ParseFingerprint("1234 5678 9ABC DEF0 1234 5678 9ABC DEF0 1234 5678")
	require.NoError(t, err)
	require.Equal(t, "123456789ABCDEF0123456789ABCDEF012345678", fp)

	_, err = ParseFingerprint("tooshort")
	require.Error(t, err)

	_, err = ParseFingerprint(strings.Repeat("G", 40))
	require.Error(t, err)
}

func TestFormatFingerprint(t *testing.T) {
	in := "123456789ABCDEF0123456789ABCDEF012345678"
	out := FormatFingerprint(in)
	require.Equal(t, "1234 5678 9ABC DEF0 1234 5678 9ABC DEF0 1234 5678", out)

	require.Equal(t, "short", FormatFingerprint("short"))
}
