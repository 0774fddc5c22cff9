package api

import (
	"net/http"

	apperrors "arxiv_rag_go_backend/internal/errors"
	"arxiv_rag_go_backend/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// askHandler answers with placeholder content until retrieval exists.
func askHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var request models.AskRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			apperrors.HandleError(c, apperrors.New422Error("question is required"))
			return
		}

		zerolog.Ctx(c.Request.Context()).Debug().Str("question", request.Question).Msg("Received question")

		c.JSON(http.StatusOK, models.AskResponse{
			Answer: "This is a placeholder answer to your question.",
			Sources: []models.PaperSource{
				{
					ArxivID:         "1234.56789",
					Title:           "Sample Paper Title",
					Authors:         []string{"Author One", "Author Two"},
					AbstractPreview: "This is a preview of the abstract of the sample paper.",
				},
			},
		})
	}
}
