package tools

import "context"

// AnonymousUser — пользователь без идентификатора; его поиск не ограничен тенантом.
const AnonymousUser = "anonymous"

type userIDKey struct{}

// WithUserID кладёт идентификатор пользователя в контекст вызова инструментов.
//
// Тенант не является аргументом инструмента: модель не выбирает, чьи документы искать.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// UserIDFromContext возвращает пользователя из контекста или AnonymousUser.
func UserIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(userIDKey{}).(string); ok && id != "" {
		return id
	}
	return AnonymousUser
}
