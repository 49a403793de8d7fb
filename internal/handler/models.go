package handler

import (
	"net/http"
	"time"

	"chatrelay-backend/internal/config"
	"chatrelay-backend/internal/model"

	"github.com/gin-gonic/gin"
	openai "github.com/sashabaranov/go-openai"
)

type ModelHandler struct {
	models []config.ModelConfig
}

func NewModelHandler(models []config.ModelConfig) *ModelHandler {
	return &ModelHandler{models: models}
}

// ListModels serves GET /v1/models. Created is stamped at request time.
func (h *ModelHandler) ListModels(c *gin.Context) {
	created := time.Now().Unix()

	data := make([]openai.Model, 0, len(h.models))
	for _, m := range h.models {
		data = append(data, openai.Model{
			ID:        m.ID,
			Object:    model.ObjectModel,
			CreatedAt: created,
			OwnedBy:   m.OwnedBy,
		})
	}

	c.JSON(http.StatusOK, model.ModelList{
		Object: model.ObjectList,
		Data:   data,
	})
}
