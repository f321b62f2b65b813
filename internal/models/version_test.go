package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionBump(t *testing.T) {
	v := Version{Major: 2, Minor: 5, Patch: 9}

	assert.Equal(t, Version{Major: 2, Minor: 5, Patch: 10}, v.Bump(BumpPatch))
	assert.Equal(t, Version{Major: 2, Minor: 6, Patch: 0}, v.Bump(BumpMinor), "minor bump resets patch")
	assert.Equal(t, Version{Major: 3, Minor: 0, Patch: 0}, v.Bump(BumpMajor), "major bump resets minor and patch")
}

func TestVersionBump_FromZero(t *testing.T) {
	var v Version
	assert.Equal(t, Version{Minor: 1}, v.Bump(BumpMinor))
	assert.Equal(t, Version{Major: 1}, v.Bump(BumpMajor))
}

func TestParseVersion(t *testing.T) {
	v, err := ParseVersion("1.2.3")
	require.NoError(t, err)
	assert.Equal(t, Version{Major: 1, Minor: 2, Patch: 3}, v)
	assert.Equal(t, "1.2.3", v.String())

	_, err = ParseVersion("not-a-version")
	assert.Error(t, err)

	_, err = ParseVersion("1.-2.3")
	assert.Error(t, err)
}

func TestErrorKinds(t *testing.T) {
	err := InvalidInput("branch id %d out of range", -1)
	assert.Equal(t, KindInvalidInput, KindOf(err))
	assert.NotEmpty(t, HintOf(err))

	wrapped := TransactionFailure(assert.AnError, "persist merge")
	assert.Equal(t, KindTransactionFailure, KindOf(wrapped))
	assert.ErrorIs(t, wrapped, assert.AnError)
}
