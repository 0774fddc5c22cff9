package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArxivPaper_ToPaper(t *testing.T) {
	a := ArxivPaper{
		ArxivID:       "2401.00001v2",
		Title:         "A Title",
		Authors:       []string{"Ada Lovelace", "Alan Turing"},
		Abstract:      "Abstract text.",
		Categories:    []string{"cs.AI", "cs.LG"},
		PublishedDate: "2024-01-02T15:04:05Z",
		PDFURL:        "https://arxiv.org/pdf/2401.00001v2",
	}

	p, err := a.ToPaper()
	require.NoError(t, err)
	assert.Equal(t, uuid.Nil, p.ID)
	assert.Equal(t, "2401.00001v2", p.ArxivID)
	assert.Equal(t, []string{"Ada Lovelace", "Alan Turing"}, p.Authors)
	assert.Equal(t, time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC), p.PublishedDate)

	// The conversion must not share slices with the source record.
	a.Authors[0] = "changed"
	assert.Equal(t, "Ada Lovelace", p.Authors[0])
}

func TestArxivPaper_ToPaperRejectsBadDate(t *testing.T) {
	_, err := ArxivPaper{ArxivID: "2401.00001", PublishedDate: "yesterday"}.ToPaper()
	assert.Error(t, err)
}

func TestPaper_BeforeCreateAssignsID(t *testing.T) {
	p := &Paper{}
	require.NoError(t, p.BeforeCreate(nil))
	assert.NotEqual(t, uuid.Nil, p.ID)

	existing := uuid.New()
	p = &Paper{ID: existing}
	require.NoError(t, p.BeforeCreate(nil))
	assert.Equal(t, existing, p.ID)
}
