package chunker

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func words(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("w%d", i)
	}
	return strings.Join(parts, " ")
}

func TestNewRejectsInvalidSize(t *testing.T) {
	_, err := New(0)
	assert.Error(t, err)

	_, err = New(-5)
	assert.Error(t, err)
}

func TestSplitEmptyText(t *testing.T) {
	c, err := New(200)
	require.NoError(t, err)

	assert.Empty(t, c.Split(""))
	assert.Empty(t, c.Split("   \n\t  "))
}

func TestSplitWindowSizes(t *testing.T) {
	c, err := New(200)
	require.NoError(t, err)

	// 450 个词，size=200：应得到 200/200/50 三个分块
	chunks := c.Split(words(450))
	require.Len(t, chunks, 3)
	assert.Len(t, strings.Fields(chunks[0]), 200)
	assert.Len(t, strings.Fields(chunks[1]), 200)
	assert.Len(t, strings.Fields(chunks[2]), 50)
}

func TestSplitNoOverlapAndLossless(t *testing.T) {
	c, err := New(3)
	require.NoError(t, err)

	text := "a b c d e f g h"
	chunks := c.Split(text)
	require.Len(t, chunks, 3)

	// 分块拼接后应还原为单空格归一化的原文（无重叠、无丢词）
	assert.Equal(t, text, strings.Join(chunks, " "))
}

func TestSplitDeterministic(t *testing.T) {
	c, err := New(7)
	require.NoError(t, err)

	text := words(100)
	assert.Equal(t, c.Split(text), c.Split(text))
}

func TestSplitSingleChunk(t *testing.T) {
	c, err := New(200)
	require.NoError(t, err)

	chunks := c.Split("hello world")
	require.Len(t, chunks, 1)
	assert.Equal(t, "hello world", chunks[0])
}
