package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Paper is the stored record of an arXiv paper. ArxivID is unique, repeated
// ingestion of the same paper updates the existing row.
type Paper struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ArxivID       string    `gorm:"type:varchar(20);uniqueIndex;not null" json:"arxiv_id"`
	Title         string    `gorm:"not null" json:"title"`
	Authors       []string  `gorm:"type:text;serializer:json" json:"authors"`
	Abstract      string    `gorm:"type:text" json:"abstract"`
	Categories    []string  `gorm:"type:text;serializer:json" json:"categories"`
	PublishedDate time.Time `gorm:"index" json:"published_date"`
	PDFURL        string    `gorm:"column:pdf_url" json:"pdf_url"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (Paper) TableName() string {
	return "papers"
}

// BeforeCreate assigns the server side id.
func (p *Paper) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// ArxivPaper is a record parsed from the arXiv API. PublishedDate is the raw
// ISO-8601 text from the feed.
type ArxivPaper struct {
	ArxivID       string   `json:"arxiv_id"`
	Title         string   `json:"title"`
	Authors       []string `json:"authors"`
	Abstract      string   `json:"abstract"`
	Categories    []string `json:"categories"`
	PublishedDate string   `json:"published_date"`
	PDFURL        string   `json:"pdf_url"`
}

// ToPaper converts the parsed record into a storable Paper.
func (a ArxivPaper) ToPaper() (*Paper, error) {
	published, err := time.Parse(time.RFC3339, a.PublishedDate)
	if err != nil {
		return nil, fmt.Errorf("paper %s: invalid published date %q: %w", a.ArxivID, a.PublishedDate, err)
	}
	return &Paper{
		ArxivID:       a.ArxivID,
		Title:         a.Title,
		Authors:       append([]string(nil), a.Authors...),
		Abstract:      a.Abstract,
		Categories:    append([]string(nil), a.Categories...),
		PublishedDate: published.UTC(),
		PDFURL:        a.PDFURL,
	}, nil
}

// PaperResponse is the API representation of a stored paper.
type PaperResponse struct {
	ID            uuid.UUID `json:"id"`
	ArxivID       string    `json:"arxiv_id"`
	Title         string    `json:"title"`
	Authors       []string  `json:"authors"`
	Abstract      string    `json:"abstract"`
	Categories    []string  `json:"categories"`
	PublishedDate time.Time `json:"published_date"`
	PDFURL        string    `json:"pdf_url"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func NewPaperResponse(p *Paper) PaperResponse {
	return PaperResponse{
		ID:            p.ID,
		ArxivID:       p.ArxivID,
		Title:         p.Title,
		Authors:       p.Authors,
		Abstract:      p.Abstract,
		Categories:    p.Categories,
		PublishedDate: p.PublishedDate,
		PDFURL:        p.PDFURL,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}
