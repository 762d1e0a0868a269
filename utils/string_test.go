package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsAlphanumeric(t *testing.T) {
	assert.True(t, IsAlphanumeric("bob42"))
	assert.True(t, IsAlphanumeric("7F1u3wSD5RbOHQmupo9nx4TnhQ"))
	assert.False(t, IsAlphanumeric(""))
	assert.False(t, IsAlphanumeric("bob smith"))
	assert.False(t, IsAlphanumeric("bob_"))
	assert.False(t, IsAlphanumeric("bøb"))
}

func TestContainsOnly(t *testing.T) {
	assert.True(t, ContainsOnly("/dir/file-1.txt", "/._-"))
	assert.True(t, ContainsOnly("", "/"))
	assert.False(t, ContainsOnly("/dir/fi le", "/._-"))
	assert.False(t, ContainsOnly("/a*b", "/._-"))
}
