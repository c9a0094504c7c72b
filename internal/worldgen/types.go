package worldgen

import "errors"

var (
	// ErrPlanning - генератор не вернул ожидаемый структурированный план
	// (неразбираемый ответ или отсутствуют обязательные верхнеуровневые ключи).
	ErrPlanning = errors.New("world planning failed")
	// ErrExpansion - не удалось развернуть план в полный мир.
	ErrExpansion = errors.New("world expansion failed")
)

// Profile - высокоуровневый запрос на мир: тема, сложность, профиль игрока.
type Profile struct {
	UserID     string `json:"user_id"`
	Name       string `json:"name"`
	Theme      string `json:"theme"`
	Difficulty string `json:"difficulty,omitempty"`
}

// PlanConnection - сырая связь комнаты из плана: направление и цель.
type PlanConnection struct {
	Direction string `json:"direction"`
	TargetID  string `json:"target_id"`
}

// PlanLocation - скелет локации из плана.
type PlanLocation struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Connections []PlanConnection `json:"connections"`
}

// PlanCharacter - скелет персонажа из плана.
type PlanCharacter struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	LocationID string `json:"location_id"`
}

// PlanQuest - скелет квеста из плана.
type PlanQuest struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Plan - скелет мира из одного вызова генератора. Стабильные id из плана
// служат точками соединения при развертывании.
type Plan struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Setting     string          `json:"setting"`
	StartID     string          `json:"start_id"`
	Locations   []PlanLocation  `json:"locations"`
	Characters  []PlanCharacter `json:"characters"`
	Quests      []PlanQuest     `json:"quests"`
}

// characterDetail - результат вызова генерации диалогов персонажей.
type characterDetail struct {
	ID          string `json:"id"`
	Personality string `json:"personality"`
	Dialogue    string `json:"dialogue"`
}

// questDetail - результат вызова детализации квестов.
type questDetail struct {
	ID          string   `json:"id"`
	Description string   `json:"description"`
	Steps       []string `json:"steps"`
	Reward      int      `json:"reward"`
}
