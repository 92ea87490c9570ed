package msisdn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
		wantErr  bool
	}{
		{"NineDigits", "712345678", "254712345678", false},
		{"TenDigitsLeadingZero", "0712345678", "254712345678", false},
		{"TwelveDigitsCanonical", "254712345678", "254712345678", false},
		{"Empty", "", "", true},
		{"TooShort", "123", "", true},
		{"NineDigitsWrongPrefix", "812345678", "", true},
		{"TenDigitsWrongPrefix", "0812345678", "", true},
		{"TwelveDigitsWrongPrefix", "255712345678", "", true},
		{"ElevenDigits", "25471234567", "", true},
		{"ThirteenDigits", "2547123456789", "", true},
		{"NonDigits", "07123a5678", "", true},
		{"PlusPrefix", "+254712345678", "", true},
		{"Whitespace", "0712 345678", "", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Normalize(tc.input)
			if tc.wantErr {
				require.ErrorIs(t, err, ErrInvalidFormat)
				assert.Empty(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{"712345678", "0712345678", "254712345678"}
	for _, input := range inputs {
		once, err := Normalize(input)
		require.NoError(t, err)

		twice, err := Normalize(once)
		require.NoError(t, err)
		assert.Equal(t, once, twice)
	}
}
