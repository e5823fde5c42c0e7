// Базовые типы - определяем универсальный язык общения с моделями.
package llm

// Role — роль автора хода в разговоре.
type Role string

const (
	RoleSystem     Role = "system"
	RoleUser       Role = "user"
	RoleModel      Role = "model"
	RoleToolResult Role = "tool-result"
)

// Turn — один ход разговора.
//
// Инвариант: Results хода RoleToolResult соответствуют 1:1 и в том же
// порядке Calls непосредственно предшествующего хода RoleModel.
// После добавления в Conversation ход не изменяется.
type Turn struct {
	Role    Role
	Text    string       // Текст (user, model, system)
	Calls   []ToolCall   // Только для RoleModel с запросом инструментов
	Results []ToolResult // Только для RoleToolResult
}

// ToolCall — структурированный запрос инструмента, который выдала модель.
type ToolCall struct {
	ID      string         // ID вызова у провайдера (нужен для tool_call_id)
	Name    string         // Имя инструмента из каталога
	Args    map[string]any // Аргументы после decode
	RawArgs string         // Сырой JSON от провайдера (для логов)

	// DecodeErr заполняется если RawArgs не удалось разобрать как JSON объект.
	DecodeErr error
}

// ToolResult — результат выполнения одного ToolCall.
//
// Никогда не несёт Go-ошибку: сбой адаптера лежит в Payload["error"].
type ToolResult struct {
	CallID    string
	ToolName  string
	Args      map[string]any // Аргументы после нормализации
	Payload   map[string]any
	CallIndex int // Позиция в раунде
}

// IsError сообщает, содержит ли payload маркер ошибки.
func (r ToolResult) IsError() bool {
	_, ok := r.Payload["error"]
	return ok
}

// Usage — токены, потраченные на один вызов (или накопленные за обмен).
type Usage struct {
	TotalTokens     int `json:"total_tokens"`
	EmbeddingTokens int `json:"embedding_tokens"`
}

// Response — разобранный ответ модели за один раунд.
type Response struct {
	// Text — конкатенация всех текстовых фрагментов в порядке их следования.
	Text string

	// Calls — запрошенные инструменты в порядке, в котором их выдала модель.
	Calls []ToolCall

	// Usage — токены, которые сообщил провайдер.
	Usage Usage

	// NoCandidate — провайдер не вернул ни одного кандидата.
	NoCandidate bool
}

// UserTurn создаёт ход пользователя.
func UserTurn(text string) Turn {
	return Turn{Role: RoleUser, Text: text}
}

// ModelTurn создаёт ход модели.
func ModelTurn(text string, calls []ToolCall) Turn {
	return Turn{Role: RoleModel, Text: text, Calls: calls}
}
