package models

type AskRequest struct {
	Question string `json:"question" binding:"required"`
}

// PaperSource is a paper referenced by an answer.
type PaperSource struct {
	ArxivID         string   `json:"arxiv_id"`
	Title           string   `json:"title"`
	Authors         []string `json:"authors"`
	AbstractPreview string   `json:"abstract_preview"`
}

type AskResponse struct {
	Answer  string        `json:"answer"`
	Sources []PaperSource `json:"sources"`
}
