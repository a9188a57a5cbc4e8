package stages

import (
	"context"
	"fmt"
	"strings"

	"covercat/internal/coverimage"
	"covercat/internal/records"
	"covercat/internal/services/ollama"
	"covercat/internal/stage"
	"covercat/internal/textutil"
)

const (
	// Unidentified is the answer the title prompt asks for when the model is
	// unsure.
	Unidentified = "NO IDENTIFICADO"

	promptTitle = "Esta es la portada de una pelicula. Puede tener estilos de letra creativos, " +
		"efectos visuales o maquetaciones no convencionales. Si identificas el titulo con claridad, " +
		"responde solo el titulo exacto. Si no estas seguro, responde solo: " + Unidentified + "."
	promptTeam = "Estas viendo la portada de una pelicula. Extrae nombres de personas claramente " +
		"identificables como director, productor o actor/actriz. Si no puedes identificar roles con " +
		"certeza, incluye los nombres al final. Responde solo con una lista separada por comas, " +
		"o cadena vacia si no hay nombres."
)

type extractionHandler struct {
	chat       Chatter
	titleModel string
	teamModel  string
	cover      coverimage.Options
}

func (h *extractionHandler) Execute(ctx context.Context, attrs records.Attributes) (records.Attributes, error) {
	path := strings.TrimSpace(attrs[records.AttrImagePath])
	if path == "" {
		return nil, stage.Permanent("image_path is empty", nil)
	}
	encoded, err := coverimage.PrepareBase64(path, h.cover)
	if err != nil {
		return nil, err
	}

	titleAnswer, err := h.ask(ctx, h.titleModel, promptTitle, encoded)
	if err != nil {
		return nil, err
	}
	teamAnswer, err := h.ask(ctx, h.teamModel, promptTeam, encoded)
	if err != nil {
		return nil, err
	}

	title, identified := ParseTitle(titleAnswer)
	team := ParseTeam(teamAnswer)
	if !identified && len(team) == 0 {
		return nil, stage.Permanentf("cover unreadable: no title or names identified in %s", path)
	}
	return records.Attributes{
		records.AttrTitle: title,
		records.AttrTeam:  textutil.JoinValues(team),
	}, nil
}

func (h *extractionHandler) ask(ctx context.Context, model, prompt, image string) (string, error) {
	answer, err := h.chat.Chat(ctx, model, []ollama.Message{{Role: "user", Content: prompt, Images: []string{image}}})
	if err != nil {
		return "", fmt.Errorf("ask %s: %w", model, err)
	}
	return answer, nil
}

func (h *extractionHandler) HealthCheck(ctx context.Context) stage.Health {
	return checkModels(ctx, Extraction, h.chat, h.titleModel, h.teamModel)
}

// ParseTitle cleans a title answer. identified is false when the model
// declined to name the film.
func ParseTitle(answer string) (title string, identified bool) {
	title = strings.Trim(strings.TrimSpace(answer), `"`)
	title = textutil.CollapseSpaces(title)
	if title == "" || strings.HasPrefix(strings.ToUpper(title), Unidentified) {
		return "", false
	}
	return title, true
}

// ParseTeam splits a comma or newline separated list of names.
func ParseTeam(answer string) []string {
	names := textutil.SplitList(answer)
	out := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.Trim(name, `".`)
		if name != "" {
			out = append(out, name)
		}
	}
	return textutil.DedupeKeepOrder(out)
}

func checkModels(ctx context.Context, name string, chat Chatter, models ...string) stage.Health {
	checker, ok := chat.(ModelChecker)
	if !ok {
		return stage.Healthy(name)
	}
	if err := checker.CheckModels(ctx, models...); err != nil {
		return stage.Unhealthy(name, err.Error())
	}
	return stage.Healthy(name)
}
