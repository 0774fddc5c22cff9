package services

import (
	"errors"

	"arxiv_rag_go_backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrPaperNotFound = errors.New("paper not found")

// PaperRepository is the storage contract for papers. Upsert is keyed on the
// arXiv id.
type PaperRepository interface {
	Create(paper *models.Paper) (*models.Paper, error)
	GetByArxivID(arxivID string) (*models.Paper, error)
	GetByID(id uuid.UUID) (*models.Paper, error)
	GetAll(limit, offset int) ([]models.Paper, error)
	Update(paper *models.Paper) (*models.Paper, error)
	Upsert(paper *models.Paper) (*models.Paper, bool, error)
}

type DefaultPaperRepository struct {
	db *gorm.DB
}

// NewPaperRepository binds a repository to db, which may be the pool or an
// open session.
func NewPaperRepository(db *gorm.DB) PaperRepository {
	return &DefaultPaperRepository{db: db}
}

func (r *DefaultPaperRepository) Create(paper *models.Paper) (*models.Paper, error) {
	if err := r.db.Create(paper).Error; err != nil {
		return nil, err
	}
	return paper, nil
}

func (r *DefaultPaperRepository) GetByArxivID(arxivID string) (*models.Paper, error) {
	var paper models.Paper
	err := r.db.Where("arxiv_id = ?", arxivID).First(&paper).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPaperNotFound
	}
	if err != nil {
		return nil, err
	}
	return &paper, nil
}

func (r *DefaultPaperRepository) GetByID(id uuid.UUID) (*models.Paper, error) {
	var paper models.Paper
	err := r.db.Where("id = ?", id).First(&paper).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPaperNotFound
	}
	if err != nil {
		return nil, err
	}
	return &paper, nil
}

// GetAll returns papers newest first.
func (r *DefaultPaperRepository) GetAll(limit, offset int) ([]models.Paper, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	var papers []models.Paper
	err := r.db.Order("published_date DESC").Limit(limit).Offset(offset).Find(&papers).Error
	if err != nil {
		return nil, err
	}
	return papers, nil
}

func (r *DefaultPaperRepository) Update(paper *models.Paper) (*models.Paper, error) {
	if err := r.db.Save(paper).Error; err != nil {
		return nil, err
	}
	return paper, nil
}

// Upsert overwrites every field of the stored paper with the same arXiv id, or
// inserts a new one. The boolean reports whether a row was created.
func (r *DefaultPaperRepository) Upsert(paper *models.Paper) (*models.Paper, bool, error) {
	existing, err := r.GetByArxivID(paper.ArxivID)
	if errors.Is(err, ErrPaperNotFound) {
		created, err := r.Create(paper)
		return created, true, err
	}
	if err != nil {
		return nil, false, err
	}

	existing.Title = paper.Title
	existing.Authors = paper.Authors
	existing.Abstract = paper.Abstract
	existing.Categories = paper.Categories
	existing.PublishedDate = paper.PublishedDate
	existing.PDFURL = paper.PDFURL

	updated, err := r.Update(existing)
	return updated, false, err
}
