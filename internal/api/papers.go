package api

import (
	"fmt"
	"net/http"
	"regexp"
	"time"

	apperrors "arxiv_rag_go_backend/internal/errors"
	"arxiv_rag_go_backend/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

var arxivIDPattern = regexp.MustCompile(`^\d{4}\.\d{4,5}(v\d+)?$`)

var (
	mockPaperID      = uuid.MustParse("12345678-1234-5678-1234-567812345678")
	mockPaperCreated = time.Date(2025, 12, 27, 9, 19, 16, 0, time.UTC)
)

const mockAbstract = "The dominant sequence transduction models are based on complex recurrent or convolutional " +
	"neural networks that include an encoder and a decoder. The best performing models also connect the encoder " +
	"and decoder through an attention mechanism. We propose a new simple network architecture, the Transformer, " +
	"based solely on attention mechanisms, dispensing with recurrence and convolutions entirely. Experiments on two " +
	"machine translation tasks show these models to be superior in quality while being more parallelizable and " +
	"requiring significantly less time to train."

// getPaperHandler serves a fixed record for any well-formed id until the
// repository lookup is wired to the route.
func getPaperHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		arxivID := c.Param("arxiv_id")
		if !arxivIDPattern.MatchString(arxivID) {
			apperrors.HandleError(c, apperrors.New422Error(
				fmt.Sprintf("arxiv_id %q must match %s", arxivID, arxivIDPattern.String())))
			return
		}

		c.JSON(http.StatusOK, mockPaper(arxivID))
	}
}

func mockPaper(arxivID string) models.PaperResponse {
	return models.NewPaperResponse(&models.Paper{
		ID:      mockPaperID,
		ArxivID: arxivID,
		Title:   "Attention Is All You Need",
		Authors: []string{
			"Ashish Vaswani",
			"Noam Shazeer",
			"Niki Parmar",
			"Jakob Uszkoreit",
			"Llion Jones",
			"Aidan N. Gomez",
			"Lukasz Kaiser",
			"Illia Polosukhin",
		},
		Abstract:      mockAbstract,
		Categories:    []string{"cs.CL", "cs.AI", "cs.LG"},
		PublishedDate: time.Date(2017, 6, 12, 0, 0, 0, 0, time.UTC),
		PDFURL:        fmt.Sprintf("https://arxiv.org/pdf/%s.pdf", arxivID),
		CreatedAt:     mockPaperCreated,
		UpdatedAt:     mockPaperCreated,
	})
}
