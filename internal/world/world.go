package world

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lrspeiser/Grue.is-sub000/internal/models"
)

var (
	// ErrRoomNotFound - комната с таким id в мире отсутствует.
	ErrRoomNotFound = errors.New("room not found in world")
	// ErrItemNotFound - предмет не найден там, откуда его пытаются взять.
	ErrItemNotFound = errors.New("item not found")
)

// TransferDirection - направление переноса предмета между комнатой и инвентарем.
type TransferDirection string

const (
	TransferTake TransferDirection = "take"
	TransferDrop TransferDirection = "drop"
)

// directionAliases - таблица нормализации направлений. Сокращения и полные
// имена приводятся к каноническому виду; неизвестные строки проходят
// без изменений и просто не совпадут ни с одним выходом.
var directionAliases = map[string]string{
	"n": "north", "north": "north",
	"s": "south", "south": "south",
	"e": "east", "east": "east",
	"w": "west", "west": "west",
	"u": "up", "up": "up",
	"d": "down", "down": "down",
}

// NormalizeDirection приводит направление к каноническому виду.
// Нормализация идемпотентна: повторный вызов ничего не меняет.
func NormalizeDirection(dir string) string {
	if canonical, ok := directionAliases[strings.ToLower(strings.TrimSpace(dir))]; ok {
		return canonical
	}
	return dir
}

// ValidationError описывает первое нарушение схемы мира с человекочитаемой
// причиной. Проверка fail-closed: любое отсутствующее или неверно
// типизированное поле - ошибка.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("world validation failed at %s: %s", e.Field, e.Reason)
}

// ValidateGenerated проверяет обязательные поля структурированных комнат,
// пришедших от генератора: room_id, name, description, массив exits и
// id+label+keywords у каждого выхода.
func ValidateGenerated(rooms []models.GeneratedRoom) error {
	if len(rooms) == 0 {
		return &ValidationError{Field: "rooms", Reason: "world has no rooms"}
	}
	for i, r := range rooms {
		prefix := fmt.Sprintf("rooms[%d]", i)
		if strings.TrimSpace(r.RoomID) == "" {
			return &ValidationError{Field: prefix + ".room_id", Reason: "missing or empty"}
		}
		if strings.TrimSpace(r.Name) == "" {
			return &ValidationError{Field: prefix + ".name", Reason: "missing or empty"}
		}
		if strings.TrimSpace(r.Description) == "" {
			return &ValidationError{Field: prefix + ".description", Reason: "missing or empty"}
		}
		if r.Exits == nil {
			return &ValidationError{Field: prefix + ".exits", Reason: "missing exits list"}
		}
		for j, exit := range r.Exits {
			exitPrefix := fmt.Sprintf("%s.exits[%d]", prefix, j)
			if strings.TrimSpace(exit.ID) == "" {
				return &ValidationError{Field: exitPrefix + ".id", Reason: "missing or empty"}
			}
			if strings.TrimSpace(exit.Label) == "" {
				return &ValidationError{Field: exitPrefix + ".label", Reason: "missing or empty"}
			}
			if len(exit.Keywords) == 0 {
				return &ValidationError{Field: exitPrefix + ".keywords", Reason: "missing keyword list"}
			}
		}
	}
	return nil
}

// Validate проверяет инвариант собранного мира: каждый непустой выход
// каждой комнаты должен ссылаться на существующий room_id.
func Validate(w *models.World) error {
	if w == nil {
		return &ValidationError{Field: "world", Reason: "world is nil"}
	}
	if len(w.Rooms) == 0 {
		return &ValidationError{Field: "rooms", Reason: "world has no rooms"}
	}
	known := make(map[string]struct{}, len(w.Rooms))
	for _, r := range w.Rooms {
		if r.ID == "" {
			return &ValidationError{Field: "rooms", Reason: "room with empty room_id"}
		}
		known[r.ID] = struct{}{}
	}
	if w.StartRoomID != "" {
		if _, ok := known[w.StartRoomID]; !ok {
			return &ValidationError{Field: "start_room_id", Reason: fmt.Sprintf("unknown room %q", w.StartRoomID)}
		}
	}
	for _, r := range w.Rooms {
		for dir, target := range r.Exits {
			if target == nil {
				continue // Тупиковый выход допустим.
			}
			if _, ok := known[*target]; !ok {
				return &ValidationError{
					Field:  fmt.Sprintf("rooms[%s].exits[%s]", r.ID, dir),
					Reason: fmt.Sprintf("exit target %q does not exist", *target),
				}
			}
		}
	}
	return nil
}

// FindRoom возвращает указатель на комнату мира по room_id.
func FindRoom(w *models.World, roomID string) (*models.Room, error) {
	for i := range w.Rooms {
		if w.Rooms[i].ID == roomID {
			return &w.Rooms[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
}

// FindNPC возвращает персонажа мира по id.
func FindNPC(w *models.World, npcID string) (*models.NPC, bool) {
	for i := range w.NPCs {
		if w.NPCs[i].ID == npcID {
			return &w.NPCs[i], true
		}
	}
	return nil, false
}

// MatchItem ищет предмет в списке по нечеткому совпадению: без учета
// регистра, подстрока в любую сторону. Возвращает индекс и точное имя.
func MatchItem(items []string, query string) (int, string, bool) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return -1, "", false
	}
	for i, item := range items {
		lower := strings.ToLower(item)
		if strings.Contains(lower, q) || strings.Contains(q, lower) {
			return i, item, true
		}
	}
	return -1, "", false
}

// ApplyItemTransfer атомарно (с точки зрения вызывающего) переносит предмет
// между списком предметов комнаты и инвентарем. При take предмет ищется
// нечетким совпадением в комнате; при drop - в инвентаре. При неудаче
// состояние не меняется.
func ApplyItemTransfer(w *models.World, roomID, item string, dir TransferDirection, inventory []string) ([]string, string, error) {
	room, err := FindRoom(w, roomID)
	if err != nil {
		return inventory, "", err
	}

	switch dir {
	case TransferTake:
		idx, name, ok := MatchItem(room.Items, item)
		if !ok {
			return inventory, "", fmt.Errorf("%w: %q in room %s", ErrItemNotFound, item, roomID)
		}
		room.Items = append(room.Items[:idx], room.Items[idx+1:]...)
		return append(inventory, name), name, nil
	case TransferDrop:
		idx, name, ok := MatchItem(inventory, item)
		if !ok {
			return inventory, "", fmt.Errorf("%w: %q in inventory", ErrItemNotFound, item)
		}
		inventory = append(inventory[:idx], inventory[idx+1:]...)
		room.Items = append(room.Items, name)
		return inventory, name, nil
	default:
		return inventory, "", fmt.Errorf("unknown transfer direction %q", dir)
	}
}

// AvailableExits возвращает отсортированный по обходу карты список
// направлений комнаты с непустыми целями.
func AvailableExits(room *models.Room) []string {
	// Стабильный порядок перечисления для сообщений игроку.
	order := []string{"north", "south", "east", "west", "up", "down"}
	exits := make([]string, 0, len(room.Exits))
	seen := make(map[string]struct{}, len(room.Exits))
	for _, dir := range order {
		if target, ok := room.Exits[dir]; ok && target != nil {
			exits = append(exits, dir)
			seen[dir] = struct{}{}
		}
	}
	for dir, target := range room.Exits {
		if _, done := seen[dir]; done || target == nil {
			continue
		}
		exits = append(exits, dir)
	}
	return exits
}
