package std

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ilkoid/knowme/pkg/apiclient"
	"github.com/ilkoid/knowme/pkg/config"
	"github.com/ilkoid/knowme/pkg/tools"
	"github.com/ilkoid/knowme/pkg/utils"
)

// WebhookToolName — имя инструмента исходящего webhook.
const WebhookToolName = "send_webhook_event"

const webhookDescription = "Send a webhook event to trigger external workflows (e.g., n8n automation). " +
	"Use this when the user wants to trigger an external action or workflow."

// Сообщения классифицированных ошибок доставки.
const (
	webhookMsgNotFound = "Webhook URL not found (404). Please verify the webhook URL is correct and the workflow is active."
	webhookMsgAuth     = "Webhook authentication failed. Check if the webhook requires authentication."
)

// WebhookTool — POST события на настроенный URL.
type WebhookTool struct {
	client      *apiclient.Client
	cfg         config.WebhookConfig
	description string
	now         func() time.Time
}

// NewWebhookTool создает инструмент webhook.
//
// Пустой cfg.URL не ошибка: инструмент отвечает "not configured" без сетевого вызова.
func NewWebhookTool(client *apiclient.Client, cfg config.WebhookConfig, toolCfg config.ToolConfig) *WebhookTool {
	desc := toolCfg.Description
	if desc == "" {
		desc = webhookDescription
	}
	return &WebhookTool{
		client:      client,
		cfg:         cfg.GetDefaults(),
		description: desc,
		now:         time.Now,
	}
}

// Definition возвращает определение инструмента для function calling.
func (t *WebhookTool) Definition() tools.ToolDefinition {
	return tools.ToolDefinition{
		Name:        WebhookToolName,
		Description: t.description,
		Params: []tools.Param{
			{
				Name:        "event_type",
				Type:        tools.TypeString,
				Description: "Type of event to trigger (e.g., 'user_action', 'notification', 'task_complete')",
				Default:     "user_action",
			},
			{
				Name:        "payload",
				Type:        tools.TypeObject,
				Description: "Additional data to send with the webhook event",
				Default:     map[string]any{},
			},
		},
	}
}

// Execute отправляет {event_type, payload, timestamp}.
//
// Аргументы приходят уже нормализованными, но пустые значения
// дополнительно закрываются здесь: инструмент можно вызвать и в обход цикла.
func (t *WebhookTool) Execute(ctx context.Context, args map[string]any) map[string]any {
	eventType := tools.String(args, "event_type")
	if eventType == "" {
		eventType = "user_action"
	}
	payload := tools.Object(args, "payload")

	if t.cfg.URL == "" {
		utils.Warn("Webhook URL not configured, skipping webhook", "event_type", eventType)
		return map[string]any{
			"success": false,
			"message": "not configured",
		}
	}

	body := map[string]any{
		"event_type": eventType,
		"payload":    payload,
		"timestamp":  t.now().UTC().Format(time.RFC3339),
	}
	if len(payload) == 0 {
		body["payload"] = map[string]any{"source": t.cfg.Source}
	}

	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	status, err := t.client.Post(ctx, WebhookToolName, t.cfg.URL, apiclient.Options{}, body, nil)
	if err != nil {
		if code := apiclient.StatusCode(err); code != 0 {
			msg := webhookStatusMessage(code)
			utils.Error("Webhook HTTP error", "event_type", eventType, "status", code, "error", msg)
			return map[string]any{
				"success":     false,
				"event_type":  eventType,
				"error":       msg,
				"status_code": code,
			}
		}

		utils.Error("Error sending webhook", "event_type", eventType, "error", err)
		return map[string]any{
			"success":    false,
			"event_type": eventType,
			"error":      "Failed to send webhook: " + err.Error(),
		}
	}

	utils.Info("Webhook sent successfully", "event_type", eventType, "status", status)
	return map[string]any{
		"success":     true,
		"event_type":  eventType,
		"status_code": status,
		"message":     "Webhook sent successfully",
	}
}

// webhookStatusMessage различает 404, ошибки авторизации и прочие статусы.
func webhookStatusMessage(code int) string {
	switch code {
	case http.StatusNotFound:
		return webhookMsgNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return webhookMsgAuth
	default:
		return fmt.Sprintf("Webhook returned %d error", code)
	}
}
