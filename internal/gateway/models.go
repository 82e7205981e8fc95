package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/modelgate/modelgate/internal/api/openai"
)

// handleListModels returns every configured model alias in the client
// protocol's listing shape.
func (h *Handler) handleListModels(w http.ResponseWriter, r *http.Request) {
	names := h.registry.Names()
	created := time.Now().Unix()

	list := openai.ModelList{
		Object: "list",
		Data:   make([]openai.Model, 0, len(names)),
	}
	for _, name := range names {
		list.Data = append(list.Data, openai.Model{
			ID:      name,
			Object:  "model",
			Created: created,
			OwnedBy: "modelgate",
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(list)
}
