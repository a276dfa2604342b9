// Пакет errors — ответы об ошибках HTTP API UPortal.
// Единый формат: {"error": {"code": "...", "message": "..."}}.
// Ошибки сервисного слоя переводятся в статусы через FromService.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/bigkaa/uportal/internal/service"
)

// Коды ошибок, описанные в OpenAPI документе.
const (
	CodeValidationError  = "VALIDATION_ERROR"
	CodeInvalidReference = "INVALID_REFERENCE"
	CodeNotFound         = "NOT_FOUND"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeForbidden        = "FORBIDDEN"
	CodeConflict         = "CONFLICT"
	CodeInternalError    = "INTERNAL_ERROR"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError записывает ответ ошибки в стандартном формате.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: errorDetail{Code: code, Message: message},
	})
}

// ValidationError — 400.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message)
}

// NotFound — 404.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

// Unauthorized — 401.
func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, CodeUnauthorized, message)
}

// Forbidden — 403.
func Forbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, CodeForbidden, message)
}

// InternalError — 500.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}

// serviceErrors — соответствие sentinel-ошибок сервисного слоя ответам.
// Порядок важен: потерянная вставка несёт и ErrStorage, и ErrConflict,
// а ErrConflict должен победить.
var serviceErrors = []struct {
	target  error
	status  int
	code    string
	message func(entity string, err error) string
}{
	{service.ErrValidation, http.StatusBadRequest, CodeValidationError,
		func(_ string, err error) string { return err.Error() }},
	{service.ErrNotFound, http.StatusNotFound, CodeNotFound,
		func(entity string, _ error) string { return entity + ": запись не найдена" }},
	{service.ErrConflict, http.StatusConflict, CodeConflict,
		func(entity string, _ error) string { return entity + ": запись с таким именем уже существует" }},
	{service.ErrInvalidReference, http.StatusBadRequest, CodeInvalidReference,
		func(entity string, _ error) string { return entity + ": ссылка на несуществующую запись" }},
}

// FromService записывает ответ для ошибки сервисного слоя.
// entity — сущность запроса для сообщения ("Роль", "Площадка").
// Возвращает false для непредвиденной ошибки: клиент получает 500 без
// подробностей, залогировать причину должен вызывающий.
func FromService(w http.ResponseWriter, err error, entity string) bool {
	for _, m := range serviceErrors {
		if stderrors.Is(err, m.target) {
			WriteError(w, m.status, m.code, m.message(entity, err))
			return true
		}
	}
	InternalError(w, "Внутренняя ошибка сервера")
	return false
}
