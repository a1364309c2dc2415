package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitArticlesLatinHeadings(t *testing.T) {
	text := `Preamble of the labor code.
Article 19
Workers are entitled to paid annual leave after six months of service.
Article 20
Overtime work is compensated at an increased rate.
Article 21
Night work requires the employee's written consent.`

	p := &Processor{}
	passages := p.splitArticles(text)
	require.Len(t, passages, 3)

	assert.Equal(t, 19, passages[0].articleNo)
	assert.Contains(t, passages[0].text, "paid annual leave")
	assert.Equal(t, 20, passages[1].articleNo)
	assert.Equal(t, 21, passages[2].articleNo)
	// The preamble before the first heading is not part of any passage.
	assert.NotContains(t, passages[0].text, "Preamble")
}

func TestSplitArticlesArabicHeadings(t *testing.T) {
	text := `مقدمة
المادة 1
لكل شخص الحق في التقاضي.
المادة 2
تكون الجلسات علنية ما لم يقرر القاضي خلاف ذلك.`

	p := &Processor{}
	passages := p.splitArticles(text)
	require.Len(t, passages, 2)
	assert.Equal(t, 1, passages[0].articleNo)
	assert.Equal(t, 2, passages[1].articleNo)
}

func TestSplitArticlesFallsBackToChunks(t *testing.T) {
	// No article structure at all: a long free-form text.
	text := strings.Repeat("legal commentary without numbered articles. ", 60)

	p := &Processor{}
	passages := p.splitArticles(text)
	require.NotEmpty(t, passages)

	// Chunks overlap, numbered sequentially from 1.
	assert.Equal(t, 1, passages[0].articleNo)
	for i := 1; i < len(passages); i++ {
		assert.Equal(t, passages[i-1].articleNo+1, passages[i].articleNo)
	}
	for _, ps := range passages {
		assert.LessOrEqual(t, len([]rune(ps.text)), chunkSize)
	}
}

func TestSplitArticlesSingleHeadingUsesChunks(t *testing.T) {
	// One lone heading is not enough evidence of article structure.
	text := "Article 5\n" + strings.Repeat("short text. ", 5)

	p := &Processor{}
	passages := p.splitArticles(text)
	require.Len(t, passages, 1)
	assert.Equal(t, 1, passages[0].articleNo)
}

func TestChunkSplitOverlap(t *testing.T) {
	text := strings.Repeat("x", chunkSize+100)

	p := &Processor{}
	passages := p.chunkSplit(text)
	require.Len(t, passages, 2)
	assert.Len(t, []rune(passages[0].text), chunkSize)
	// The second chunk re-covers the overlap window.
	assert.Len(t, []rune(passages[1].text), chunkOverlap+100)
}

func TestChunkSplitEmpty(t *testing.T) {
	p := &Processor{}
	assert.Nil(t, p.chunkSplit(""))
}
