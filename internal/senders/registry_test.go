package senders

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/chatrelay/internal/config"
)

func TestParseAssignsIDsInOrder(t *testing.T) {
	input := `
# two accounts
alice:MTIzNDU2Nzg5MDEyMzQ1Njc4.abc
bob:OTg3NjU0MzIxMDk4NzY1NDMy.def:2:5
`
	reg, err := Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Equal(t, 2, reg.Len())

	a, ok := reg.Get(0)
	require.True(t, ok)
	assert.Equal(t, 0, a.ID)
	assert.Equal(t, "alice", a.DisplayName)
	assert.False(t, a.HasDelayBounds())

	b, ok := reg.Get(1)
	require.True(t, ok)
	assert.Equal(t, 1, b.ID)
	assert.Equal(t, 2.0, b.MinDelay)
	assert.Equal(t, 5.0, b.MaxDelay)
	assert.True(t, b.HasDelayBounds())

	_, ok = reg.Get(2)
	assert.False(t, ok)
	_, ok = reg.Get(-1)
	assert.False(t, ok)
}

func TestParseRejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"single sender", "alice:token"},
		{"missing token", "alice:\nbob:token"},
		{"bad field count", "alice:token:1\nbob:token"},
		{"bad delay", "alice:token:x:2\nbob:token"},
		{"inverted bounds", "alice:token:5:2\nbob:token"},
		{"bound below one second", "alice:token:0.5:2\nbob:token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.input))
			require.Error(t, err)
			assert.True(t, errors.Is(err, config.ErrInvalid), "expected ErrInvalid, got %v", err)
		})
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "token.txt")
	require.NoError(t, os.WriteFile(path, []byte("a:t1\nb:t2\nc:t3\n"), 0o600))

	reg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 3, reg.Len())
	assert.Len(t, reg.All(), 3)

	_, err = LoadFile(filepath.Join(dir, "missing.txt"))
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestMaskedSecret(t *testing.T) {
	s := Sender{DisplayName: "alice", Secret: "abcdefghijklmnop"}
	assert.Equal(t, "abcdefghij...", s.MaskedSecret())
	assert.NotContains(t, s.String(), "klmnop")
	assert.Equal(t, "abc...", Sender{Secret: "abc"}.MaskedSecret())
}
