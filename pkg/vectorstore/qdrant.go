// Package vectorstore — доступ к векторному индексу чанков документов (Qdrant).
//
// Пакет "тупой": поиск, scroll, count и delete по фильтру payload.
// Политика отсечения (min score, шаблонные фрагменты) живёт в rag_search.
package vectorstore

import (
	"context"
	"fmt"

	"github.com/ilkoid/knowme/pkg/config"
	"github.com/qdrant/go-client/qdrant"
)

// Payload ключи чанка.
const (
	FieldText   = "text"
	FieldSource = "source"
	FieldPage   = "page"
	FieldType   = "type"
	FieldUserID = "user_id"
)

// Point — найденный чанк.
type Point struct {
	Text   string
	Source string
	Page   int
	Type   string
	Score  float64
}

// Filter ограничивает выборку по payload. Пустое поле — без ограничения.
type Filter struct {
	UserID string
	Source string
}

// Index — операции над коллекцией чанков.
type Index interface {
	// Search возвращает до limit ближайших чанков по убыванию score.
	Search(ctx context.Context, vector []float32, filter Filter, limit int) ([]Point, error)

	// Sources возвращает payload source точек (с повторами), до limit штук.
	Sources(ctx context.Context, filter Filter, limit int) ([]string, error)

	// Count возвращает точное число точек под фильтром.
	Count(ctx context.Context, filter Filter) (int, error)

	// Delete удаляет все точки под фильтром.
	Delete(ctx context.Context, filter Filter) error
}

// QdrantIndex реализует Index поверх gRPC клиента Qdrant.
type QdrantIndex struct {
	client     *qdrant.Client
	collection string
}

// NewQdrantIndex подключается к Qdrant по настройкам rag секции.
func NewQdrantIndex(cfg config.RAGConfig) (*QdrantIndex, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.QdrantHost,
		Port:   cfg.QdrantPort,
		APIKey: cfg.QdrantAPIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant connect %s:%d: %w", cfg.QdrantHost, cfg.QdrantPort, err)
	}

	return &QdrantIndex{client: client, collection: cfg.Collection}, nil
}

// Ping проверяет доступность Qdrant.
func (q *QdrantIndex) Ping(ctx context.Context) error {
	_, err := q.client.HealthCheck(ctx)
	return err
}

// Close закрывает gRPC соединение.
func (q *QdrantIndex) Close() error {
	return q.client.Close()
}

func (q *QdrantIndex) Search(ctx context.Context, vector []float32, filter Filter, limit int) ([]Point, error) {
	res, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(vector...),
		Filter:         toQdrantFilter(filter),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant query %s: %w", q.collection, err)
	}

	points := make([]Point, 0, len(res))
	for _, sp := range res {
		points = append(points, pointFromPayload(sp.GetPayload(), float64(sp.GetScore())))
	}
	return points, nil
}

func (q *QdrantIndex) Sources(ctx context.Context, filter Filter, limit int) ([]string, error) {
	res, err := q.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: q.collection,
		Filter:         toQdrantFilter(filter),
		Limit:          qdrant.PtrOf(uint32(limit)),
		WithPayload:    qdrant.NewWithPayloadInclude(FieldSource),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant scroll %s: %w", q.collection, err)
	}

	sources := make([]string, 0, len(res))
	for _, p := range res {
		if s := p.GetPayload()[FieldSource].GetStringValue(); s != "" {
			sources = append(sources, s)
		}
	}
	return sources, nil
}

func (q *QdrantIndex) Count(ctx context.Context, filter Filter) (int, error) {
	n, err := q.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: q.collection,
		Filter:         toQdrantFilter(filter),
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant count %s: %w", q.collection, err)
	}
	return int(n), nil
}

func (q *QdrantIndex) Delete(ctx context.Context, filter Filter) error {
	f := toQdrantFilter(filter)
	if f == nil {
		return fmt.Errorf("qdrant delete %s: refusing to delete without filter", q.collection)
	}

	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelectorFilter(f),
	})
	if err != nil {
		return fmt.Errorf("qdrant delete %s: %w", q.collection, err)
	}
	return nil
}

// toQdrantFilter собирает must-условия; nil — без фильтра.
func toQdrantFilter(f Filter) *qdrant.Filter {
	var must []*qdrant.Condition
	if f.Source != "" {
		must = append(must, qdrant.NewMatch(FieldSource, f.Source))
	}
	if f.UserID != "" {
		must = append(must, qdrant.NewMatch(FieldUserID, f.UserID))
	}
	if len(must) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: must}
}

// pointFromPayload достаёт поля чанка с дефолтами (page 1, source "unknown", type "text").
func pointFromPayload(payload map[string]*qdrant.Value, score float64) Point {
	p := Point{
		Text:   payload[FieldText].GetStringValue(),
		Source: payload[FieldSource].GetStringValue(),
		Type:   payload[FieldType].GetStringValue(),
		Page:   1,
		Score:  score,
	}
	if v, ok := payload[FieldPage]; ok {
		switch {
		case v.GetIntegerValue() != 0:
			p.Page = int(v.GetIntegerValue())
		case v.GetDoubleValue() != 0:
			p.Page = int(v.GetDoubleValue())
		}
	}
	if p.Source == "" {
		p.Source = "unknown"
	}
	if p.Type == "" {
		p.Type = "text"
	}
	return p
}
