package stages

import (
	"context"
	"strings"

	"covercat/internal/records"
	"covercat/internal/services/ollama"
	"covercat/internal/stage"
)

const translationSystemPrompt = "You are an English to Spanish translation tool. " +
	"Translate movie plot text to neutral Spanish. Return only the translated text."

type translationHandler struct {
	chat  Chatter
	model string
}

func (h *translationHandler) Execute(ctx context.Context, attrs records.Attributes) (records.Attributes, error) {
	plot := strings.TrimSpace(attrs[records.AttrPlotEN])
	if plot == "" {
		return records.Attributes{records.AttrPlotES: ""}, nil
	}
	translated, err := h.chat.Chat(ctx, h.model, []ollama.Message{
		{Role: "system", Content: translationSystemPrompt},
		{Role: "user", Content: plot},
	})
	if err != nil {
		return nil, err
	}
	translated = strings.TrimSpace(translated)
	if translated == "" {
		return nil, stage.Transient("model returned an empty translation", nil)
	}
	return records.Attributes{records.AttrPlotES: translated}, nil
}

func (h *translationHandler) HealthCheck(ctx context.Context) stage.Health {
	return checkModels(ctx, Translation, h.chat, h.model)
}
