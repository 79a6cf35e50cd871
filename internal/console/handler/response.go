package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/xela07ax/aasp-sandbox/internal/domain"
	"go.uber.org/zap"
)

// listResponse — общий конверт для коллекций
type listResponse[T any] struct {
	Data  []T `json:"data"`
	Total int `json:"total"`
}

type errorBody struct {
	Kind    domain.ErrorKind `json:"kind"`
	Message string           `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError переводит доменную ошибку в HTTP. Детали внутренних ошибок
// остаются в логе, клиент видит только общее сообщение.
func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	kind := domain.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case domain.KindValidation:
		status = http.StatusBadRequest
	case domain.KindNotFound:
		status = http.StatusNotFound
	default:
		logger.Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, map[string]errorBody{
		"error": {Kind: kind, Message: domain.PublicMessage(err)},
	})
}

// decodeJSON читает тело запроса. Пустое тело и битый JSON: ошибка клиента.
func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.ValidationError("request body is required")
		}
		return domain.ValidationError("invalid request body: %v", err)
	}
	return nil
}
