package ai

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var (
	jsonFenceRegex = regexp.MustCompile("(?s)```json\\s*([\\s\\S]*?)\\s*```")
	anyFenceRegex  = regexp.MustCompile("(?s)```\\s*([\\s\\S]*?)\\s*```")
)

func isValidJSON(s string) bool {
	var js json.RawMessage
	return json.Unmarshal([]byte(s), &js) == nil
}

// firstBalancedObject возвращает первую сбалансированную подстроку {...},
// игнорируя скобки внутри JSON-строк. Пустая строка - не найдено.
func firstBalancedObject(text string) string {
	start := strings.Index(text, "{")
	if start == -1 {
		return ""
	}

	depth := 0
	inString := false
	escape := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if escape {
			escape = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escape = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return text[start : i+1]
				}
			}
		}
	}
	return ""
}

// ExtractJSONContent вытаскивает JSON-объект из сырого текста генератора,
// терпимо относясь к окружающей прозе: сначала пробует блоки ```json,
// затем любые ``` блоки, затем первую сбалансированную {...} подстроку.
// Возвращает пустую строку, если валидный JSON не найден.
func ExtractJSONContent(rawText string) string {
	rawText = strings.TrimSpace(rawText)

	if matches := jsonFenceRegex.FindStringSubmatch(rawText); len(matches) > 1 {
		if candidate := strings.TrimSpace(matches[1]); isValidJSON(candidate) {
			return candidate
		}
	}
	if matches := anyFenceRegex.FindStringSubmatch(rawText); len(matches) > 1 {
		if candidate := strings.TrimSpace(matches[1]); isValidJSON(candidate) {
			return candidate
		}
	}
	if candidate := firstBalancedObject(rawText); candidate != "" && isValidJSON(candidate) {
		return candidate
	}
	return ""
}

// DecodeStrict декодирует JSON в out, запрещая неизвестные поля.
func DecodeStrict(data []byte, out interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

// SchemaVersion - одна известная версия схемы ответа генератора.
// Decode обязан вернуть ошибку, если данные этой версии не соответствуют.
type SchemaVersion struct {
	Name   string
	Decode func(data []byte) (interface{}, error)
}

// DecodeFirstMatch пробует декодировать данные против упорядоченного
// списка известных версий схемы и возвращает первое совпадение.
// Если не подошла ни одна версия - ErrUnrecognizedFormat с перечнем
// опробованных вариантов.
func DecodeFirstMatch(data []byte, versions []SchemaVersion) (string, interface{}, error) {
	var attempts []string
	for _, v := range versions {
		decoded, err := v.Decode(data)
		if err == nil {
			return v.Name, decoded, nil
		}
		attempts = append(attempts, fmt.Sprintf("%s: %v", v.Name, err))
	}
	return "", nil, fmt.Errorf("%w (tried %s)", ErrUnrecognizedFormat, strings.Join(attempts, "; "))
}

// RequireFields выполняет duck-проверку присутствия и типов полей верхнего
// уровня разобранного JSON-объекта. Возвращает SchemaError с именем первого
// нарушившего поля. Поддерживаемые типы: "string", "number", "array",
// "object", "bool".
func RequireFields(obj map[string]interface{}, fields map[string]string) error {
	// Стабильный порядок обхода, чтобы "первое поле" было детерминированным.
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		wantType := fields[name]
		value, ok := obj[name]
		if !ok || value == nil {
			return &SchemaError{Field: name, Reason: "missing required field"}
		}
		switch wantType {
		case "string":
			if _, ok := value.(string); !ok {
				return &SchemaError{Field: name, Reason: "expected string"}
			}
		case "number":
			if _, ok := value.(float64); !ok {
				return &SchemaError{Field: name, Reason: "expected number"}
			}
		case "array":
			if _, ok := value.([]interface{}); !ok {
				return &SchemaError{Field: name, Reason: "expected array"}
			}
		case "object":
			if _, ok := value.(map[string]interface{}); !ok {
				return &SchemaError{Field: name, Reason: "expected object"}
			}
		case "bool":
			if _, ok := value.(bool); !ok {
				return &SchemaError{Field: name, Reason: "expected bool"}
			}
		default:
			return errors.New("unknown field type in schema description: " + wantType)
		}
	}
	return nil
}
