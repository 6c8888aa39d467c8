package steps

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
)

// FormatInstructions возвращает инструкцию о формате ответа
// с JSON Schema, сгенерированной из wire-структуры v.
func FormatInstructions(v any) string {
	r := jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	schema := r.Reflect(v)
	schema.Version = ""

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		// Схема строится из статических типов, ошибка здесь — баг в wire-структуре
		panic(fmt.Sprintf("marshal schema: %v", err))
	}

	var b strings.Builder
	b.WriteString("Respond with a single JSON object that conforms to this JSON Schema.\n")
	b.WriteString("Do not include markdown fences or any text outside the JSON object.\n\n")
	b.Write(data)
	return b.String()
}

// extractJSON вырезает JSON-объект из ответа: снимает markdown-ограждения
// и берёт текст от первой '{' до последней '}'.
func extractJSON(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", fmt.Errorf("%w: no JSON object in response", ErrSchema)
	}
	return s[start : end+1], nil
}

// decodeStrict разбирает JSON-объект в v.
// Неизвестные поля и лишний текст после объекта считаются ошибкой.
func decodeStrict(raw string, v any) error {
	body, err := extractJSON(raw)
	if err != nil {
		return err
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON: %v", ErrSchema, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after JSON object", ErrSchema)
	}
	return nil
}

// schemaErrorf возвращает ошибку валидации, оборачивающую ErrSchema.
func schemaErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSchema, fmt.Sprintf(format, args...))
}

// inUnit проверяет, что значение задано и лежит в [0, 1].
func inUnit(v *float64) bool {
	return v != nil && *v >= 0 && *v <= 1
}

// nonEmpty возвращает элементы без пустых строк.
func nonEmpty(items []string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s := strings.TrimSpace(it); s != "" {
			out = append(out, s)
		}
	}
	return out
}
