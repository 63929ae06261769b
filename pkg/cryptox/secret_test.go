package cryptox

import (
	"math/rand/v2"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

var manualSafe = regexp.MustCompile(`^[A-Z2-7]*$`)

func TestEncodeSecret_KnownValues(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Hello!\xde\xad\xbe\xef", "JBSWY3DPEHPK3PXP"},
		{"12345678901234567890", "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"},
		{"f", "MY"},
		{"foobar", "MZXW6YTBOI"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			require.Equal(t, tt.want, EncodeSecret([]byte(tt.in)))

			got, err := DecodeSecret(tt.want)
			require.NoError(t, err)
			require.Equal(t, []byte(tt.in), got)
		})
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	for range 1000 {
		n := 16 + rand.IntN(17) // [16,32]

		b, err := GenerateSecret(n)
		require.NoError(t, err)

		encoded := EncodeSecret(b)
		require.Regexp(t, manualSafe, encoded)
		require.NotContains(t, encoded, "=")

		decoded, err := DecodeSecret(encoded)
		require.NoError(t, err)
		require.Equal(t, b, decoded)
	}
}

func TestDecodeSecret_Tolerant(t *testing.T) {
	want := []byte("Hello!\xde\xad\xbe\xef")

	inputs := []string{
		"jbswy3dpehpk3pxp",
		"JBSW Y3DP EHPK 3PXP",
		"JBSW-Y3DP-EHPK-3PXP",
		"JBSWY3DPEHPK3PXP====",
	}
	for _, in := range inputs {
		got, err := DecodeSecret(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}
}

func TestDecodeSecret_Malformed(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		"JBSWY3DP1",  // '1' is not in the alphabet
		"JBSWY3DP0O", // '0' is not in the alphabet
		"A",          // impossible length
		"ABC",        // impossible length
		"!!!!",
	}
	for _, in := range inputs {
		_, err := DecodeSecret(in)
		require.ErrorIs(t, err, ErrDecode, in)
	}
}

func TestFormatForManualEntry(t *testing.T) {
	require.Equal(t, "JBSW Y3DP EHPK 3PXP", FormatForManualEntry("JBSWY3DPEHPK3PXP"))
	require.Equal(t, "GEZD GNBV G", FormatForManualEntry("GEZDGNBVG"))
	require.Equal(t, "", FormatForManualEntry(""))

	b, err := GenerateSecret(TOTPSecretSize)
	require.NoError(t, err)
	encoded := EncodeSecret(b)

	formatted := FormatForManualEntry(encoded)
	require.Equal(t, encoded, strings.ReplaceAll(formatted, " ", ""))

	decoded, err := DecodeSecret(formatted)
	require.NoError(t, err)
	require.Equal(t, b, decoded)
}

func TestGenerateSecret_InvalidSize(t *testing.T) {
	_, err := GenerateSecret(0)
	require.Error(t, err)
}
