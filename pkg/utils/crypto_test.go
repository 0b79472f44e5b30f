package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDigest(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"ABCDEF", "abcdef"},
		{"0xABCDEF", "abcdef"},
		{"  0xAbCd  ", "abcd"},
		{"abcdef", "abcdef"},
		{"", ""},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, NormalizeDigest(tc.in))
	}
}

func TestIsValidDigest(t *testing.T) {
	valid := "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"

	assert.True(t, IsValidDigest(valid))
	assert.True(t, IsValidDigest("0x"+valid))
	assert.False(t, IsValidDigest(valid[:63]))
	assert.False(t, IsValidDigest(valid+"00"))
	assert.False(t, IsValidDigest("zz86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"))
	assert.False(t, IsValidDigest(""))
}

func TestDigestsEqual(t *testing.T) {
	assert.True(t, DigestsEqual("0xABC", "abc"))
	assert.True(t, DigestsEqual("abc", "abc"))
	assert.False(t, DigestsEqual("abc", "abd"))
}

func TestIsValidAddress(t *testing.T) {
	assert.True(t, IsValidAddress("0x000000000000000000000000000000000000dEaD"))
	assert.False(t, IsValidAddress("0x000000000000000000000000000000000000dEa"))
	assert.False(t, IsValidAddress("not-an-address"))
}

func TestGenerateID(t *testing.T) {
	a, err := GenerateID()
	require.NoError(t, err)
	b, err := GenerateID()
	require.NoError(t, err)

	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
}

func TestAppError(t *testing.T) {
	err := NewAppError(ErrCodeValidation, "Bad input", "field patient_id")
	assert.Equal(t, "VALIDATION_ERROR: Bad input (field patient_id)", err.Error())
	assert.NotEmpty(t, err.File)

	bare := NewAppError(ErrCodeNotFound, "Missing")
	assert.Equal(t, "NOT_FOUND: Missing", bare.Error())
}
