// Package documents — список и удаление загруженных документов пользователя.
//
// Документ существует только как набор чанков в векторном индексе
// (payload source = имя файла) плюс опциональная архивная копия в S3.
package documents

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/ilkoid/knowme/pkg/s3storage"
	"github.com/ilkoid/knowme/pkg/utils"
	"github.com/ilkoid/knowme/pkg/vectorstore"
)

// listLimit — сколько чанков просматривается при построении списка.
const listLimit = 1000

var (
	// ErrInvalidName — имя документа пустое после нормализации.
	ErrInvalidName = errors.New("invalid document name")

	// ErrNotFound — у пользователя нет чанков с таким source.
	ErrNotFound = errors.New("document not found")
)

// Archive — хранилище исходных файлов.
type Archive interface {
	Stat(ctx context.Context, key string) (s3storage.StoredObject, error)
	Remove(ctx context.Context, key string) error
}

// Service — операции над документами пользователя.
type Service struct {
	index   vectorstore.Index
	archive Archive
}

// NewService создаёт сервис. archive может быть nil.
func NewService(index vectorstore.Index, archive Archive) *Service {
	return &Service{index: index, archive: archive}
}

// List возвращает отсортированные имена документов пользователя.
func (s *Service) List(ctx context.Context, userID string) ([]string, error) {
	sources, err := s.index.Sources(ctx, vectorstore.Filter{UserID: userID}, listLimit)
	if err != nil {
		return nil, fmt.Errorf("list documents for %s: %w", userID, err)
	}

	seen := make(map[string]struct{}, len(sources))
	names := make([]string, 0)
	for _, src := range sources {
		if src == "" {
			continue
		}
		if _, ok := seen[src]; ok {
			continue
		}
		seen[src] = struct{}{}
		names = append(names, src)
	}
	sort.Strings(names)

	return names, nil
}

// NormalizeName обрезает пробелы и путь: удаляется только файл
// в пространстве пользователя.
func NormalizeName(name string) (string, error) {
	name = strings.TrimSpace(strings.ReplaceAll(name, `\`, "/"))
	if name == "" {
		return "", ErrInvalidName
	}
	base := path.Base(name)
	if base == "." || base == "/" || base == ".." {
		return "", ErrInvalidName
	}
	return base, nil
}

// Delete удаляет все чанки документа и его архивную копию.
//
// Возвращает нормализованное имя и число удалённых чанков.
func (s *Service) Delete(ctx context.Context, name, userID string) (string, int, error) {
	clean, err := NormalizeName(name)
	if err != nil {
		return "", 0, err
	}

	filter := vectorstore.Filter{UserID: userID, Source: clean}

	count, err := s.index.Count(ctx, filter)
	if err != nil {
		return clean, 0, fmt.Errorf("count chunks of %s: %w", clean, err)
	}
	if count == 0 {
		return clean, 0, fmt.Errorf("%w: %s", ErrNotFound, clean)
	}

	if err := s.index.Delete(ctx, filter); err != nil {
		return clean, 0, fmt.Errorf("delete chunks of %s: %w", clean, err)
	}

	utils.Info("Document chunks deleted", "name", clean, "user_id", userID, "chunks", count)

	s.removeArchived(ctx, userID, clean)
	return clean, count, nil
}

// removeArchived — best-effort: чанки уже удалены, ошибка архива только логируется.
func (s *Service) removeArchived(ctx context.Context, userID, name string) {
	if s.archive == nil {
		return
	}

	key := s3storage.ObjectKey(userID, name)
	if _, err := s.archive.Stat(ctx, key); err != nil {
		if !errors.Is(err, s3storage.ErrObjectNotFound) {
			utils.Warn("Archive stat failed", "key", key, "error", err)
		}
		return
	}

	if err := s.archive.Remove(ctx, key); err != nil {
		utils.Warn("Archive remove failed", "key", key, "error", err)
		return
	}
	utils.Info("Archived original removed", "key", key)
}
