// external_applications.go — CRUD ярлыков внешних приложений.
package service

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/bigkaa/uportal/internal/domain/model"
	"github.com/bigkaa/uportal/internal/repository"
)

const (
	maxAppNameLength  = 100
	maxAppURLLength   = 2048
	maxIconNameLength = 100
)

// ExternalApplicationInput — данные для создания и изменения ярлыка.
type ExternalApplicationInput struct {
	AppName  string
	AppURL   string
	IconName string
}

func (in *ExternalApplicationInput) validate() error {
	in.AppName = strings.TrimSpace(in.AppName)
	in.AppURL = strings.TrimSpace(in.AppURL)
	in.IconName = strings.TrimSpace(in.IconName)

	if in.AppName == "" || utf8.RuneCountInString(in.AppName) > maxAppNameLength {
		return validationError("app_name обязателен и не длиннее %d символов", maxAppNameLength)
	}
	if in.AppURL == "" || len(in.AppURL) > maxAppURLLength {
		return validationError("app_url обязателен и не длиннее %d символов", maxAppURLLength)
	}
	u, err := url.Parse(in.AppURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return validationError("app_url должен быть абсолютным http(s) URL: %q", in.AppURL)
	}
	if in.IconName == "" || utf8.RuneCountInString(in.IconName) > maxIconNameLength {
		return validationError("icon_name обязателен и не длиннее %d символов", maxIconNameLength)
	}
	return nil
}

// ExternalApplicationService — сервис ярлыков внешних приложений.
type ExternalApplicationService struct {
	sessions repository.SessionFactory
	logger   *slog.Logger
}

// NewExternalApplicationService создаёт сервис внешних приложений.
func NewExternalApplicationService(sessions repository.SessionFactory, logger *slog.Logger) *ExternalApplicationService {
	return &ExternalApplicationService{
		sessions: sessions,
		logger:   logger.With(slog.String("component", "external_application_service")),
	}
}

// ListApplications возвращает все приложения, отсортированные по имени.
func (s *ExternalApplicationService) ListApplications(ctx context.Context) ([]*model.ExternalApplication, error) {
	sess, err := s.sessions.Open(ctx)
	if err != nil {
		return nil, storageError(s.logger, "открытие сессии", err)
	}
	defer sess.Release()

	apps, err := sess.ExternalApplications().List(ctx)
	if err != nil {
		return nil, storageError(s.logger, "получение списка приложений", err)
	}
	return apps, nil
}

// GetApplication возвращает приложение или nil, если его нет.
func (s *ExternalApplicationService) GetApplication(ctx context.Context, id int) (*model.ExternalApplication, error) {
	sess, err := s.sessions.Open(ctx)
	if err != nil {
		return nil, storageError(s.logger, "открытие сессии", err)
	}
	defer sess.Release()

	app, err := sess.ExternalApplications().GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storageError(s.logger, "получение приложения", err)
	}
	return app, nil
}

// CreateApplication создаёт ярлык приложения.
func (s *ExternalApplicationService) CreateApplication(ctx context.Context, in ExternalApplicationInput) (*model.ExternalApplication, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	sess, err := s.sessions.Open(ctx)
	if err != nil {
		return nil, storageError(s.logger, "открытие сессии", err)
	}
	defer sess.Release()

	app := &model.ExternalApplication{AppName: in.AppName, AppURL: in.AppURL, IconName: in.IconName}
	if err := sess.ExternalApplications().Create(ctx, app); err != nil {
		return nil, storageError(s.logger, "создание приложения", err)
	}

	s.logger.Info("Внешнее приложение добавлено",
		slog.Int("app_id", app.ID),
		slog.String("app_name", app.AppName),
	)
	return app, nil
}

// UpdateApplication изменяет ярлык. false — приложения нет.
func (s *ExternalApplicationService) UpdateApplication(ctx context.Context, id int, in ExternalApplicationInput) (bool, error) {
	if err := in.validate(); err != nil {
		return false, err
	}

	sess, err := s.sessions.Open(ctx)
	if err != nil {
		return false, storageError(s.logger, "открытие сессии", err)
	}
	defer sess.Release()

	app := &model.ExternalApplication{ID: id, AppName: in.AppName, AppURL: in.AppURL, IconName: in.IconName}
	if err := sess.ExternalApplications().Update(ctx, app); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, storageError(s.logger, "обновление приложения", err)
	}
	return true, nil
}

// DeleteApplication удаляет ярлык. false — приложения нет.
func (s *ExternalApplicationService) DeleteApplication(ctx context.Context, id int) (bool, error) {
	sess, err := s.sessions.Open(ctx)
	if err != nil {
		return false, storageError(s.logger, "открытие сессии", err)
	}
	defer sess.Release()

	if err := sess.ExternalApplications().Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, storageError(s.logger, "удаление приложения", err)
	}

	s.logger.Info("Внешнее приложение удалено", slog.Int("app_id", id))
	return true, nil
}
