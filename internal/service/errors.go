// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/bigkaa/uportal/internal/repository"
)

var (
	// ErrValidation — ошибка валидации входных данных (ошибка вызывающего).
	ErrValidation = errors.New("ошибка валидации")
	// ErrNotFound — ресурс не найден.
	ErrNotFound = errors.New("ресурс не найден")
	// ErrStorage — ошибка хранилища (сбой, нарушение ограничений).
	ErrStorage = errors.New("ошибка хранилища")
	// ErrConflict — нарушение уникальности. Всегда вместе с ErrStorage.
	ErrConflict = errors.New("конфликт — ресурс уже существует")
	// ErrInvalidReference — ссылка на несуществующий ресурс. Всегда вместе с ErrStorage.
	ErrInvalidReference = errors.New("ссылка на несуществующий ресурс")
)

// validationError формирует ошибку валидации с пояснением.
func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// storageError логирует ошибку хранилища и оборачивает её в ErrStorage.
// Нарушения ограничений дополнительно помечаются ErrConflict / ErrInvalidReference.
// Повторных попыток нет.
func storageError(logger *slog.Logger, op string, err error) error {
	switch {
	case errors.Is(err, repository.ErrConflict):
		logger.Warn("Нарушение уникальности", slog.String("op", op), slog.String("error", err.Error()))
		return fmt.Errorf("%s: %w: %w: %w", op, ErrStorage, ErrConflict, err)
	case errors.Is(err, repository.ErrInvalidReference):
		logger.Warn("Нарушение ссылочной целостности", slog.String("op", op), slog.String("error", err.Error()))
		return fmt.Errorf("%s: %w: %w: %w", op, ErrStorage, ErrInvalidReference, err)
	default:
		logger.Error("Ошибка хранилища", slog.String("op", op), slog.String("error", err.Error()))
		return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
	}
}
