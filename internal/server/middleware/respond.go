package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/kaizenpbi/kaizen/internal/model"
)

func writeStatus(w http.ResponseWriter, s model.Status) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(s.HTTPStatus())
	json.NewEncoder(w).Encode(model.StatusResponse{Status: s, Error: s})
}
