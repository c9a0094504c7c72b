package worldgen

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lrspeiser/Grue.is-sub000/internal/ai"
	"github.com/lrspeiser/Grue.is-sub000/internal/models"
	"github.com/lrspeiser/Grue.is-sub000/internal/world"
)

const (
	plannerSystemPrompt = `You are the architect of a text adventure world. ` +
		`Given a theme, a difficulty and a player profile, respond with a single JSON object: ` +
		`{"title", "description", "setting", "start_id", ` +
		`"locations": [{"id", "name", "connections": [{"direction", "target_id"}]}], ` +
		`"characters": [{"id", "name", "location_id"}], ` +
		`"quests": [{"id", "title"}]}. ` +
		`Use 5-8 locations, 2-4 characters and 1-3 quests. Ids must be lowercase slugs. ` +
		`Directions must be one of north, south, east, west, up, down. No prose outside the JSON.`

	roomsSystemPrompt = `You are the set dresser of a text adventure world. ` +
		`Given a list of planned locations, respond with a single JSON object ` +
		`{"rooms": [{"room_id", "name", "description", ` +
		`"exits": [{"id", "label", "keywords": ["..."]}], "items": ["..."], "npcs": ["..."]}]}. ` +
		`room_id and exit ids must reuse the planned ids exactly. Two or three vivid sentences per description. ` +
		`No prose outside the JSON.`

	charactersSystemPrompt = `You are the casting director of a text adventure world. ` +
		`Given planned characters, respond with a single JSON object ` +
		`{"characters": [{"id", "personality", "dialogue"}]} where dialogue is the opening line ` +
		`the character greets the player with. Reuse the planned ids exactly. No prose outside the JSON.`

	questsSystemPrompt = `You are the quest designer of a text adventure world. ` +
		`Given planned quests, respond with a single JSON object ` +
		`{"quests": [{"id", "description", "steps": ["..."], "reward": 25}]}. ` +
		`Reuse the planned ids exactly. No prose outside the JSON.`
)

// Generator оркестрирует несколько вызовов шлюза для сборки полного
// играбельного мира из высокоуровневого плана.
type Generator struct {
	gateway *ai.Gateway
	logger  *zap.Logger
}

// NewGenerator создает генератор миров поверх шлюза.
func NewGenerator(gateway *ai.Gateway, logger *zap.Logger) *Generator {
	return &Generator{
		gateway: gateway,
		logger:  logger.Named("WorldGenerator"),
	}
}

func genParams(seed int64, maxTokens int) ai.GenerationParams {
	temp := 0.7
	topP := 0.95
	return ai.GenerationParams{
		Temperature: &temp,
		TopP:        &topP,
		MaxTokens:   &maxTokens,
		Seed:        &seed,
	}
}

// PlanWorld делает один вызов генератора и возвращает скелет мира.
// Любое отклонение от строгой схемы - ErrPlanning: неразбираемый ответ,
// отсутствие верхнеуровневых ключей locations/characters/quests.
func (g *Generator) PlanWorld(ctx context.Context, profile Profile, seed int64) (*Plan, error) {
	userPrompt, _ := json.Marshal(profile)
	res, err := g.gateway.GenerateStructured(ctx, ai.StructuredRequest{
		Kind:         "plan",
		SystemPrompt: plannerSystemPrompt,
		UserPrompt:   string(userPrompt),
		Params:       genParams(seed, 2000),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPlanning, err)
	}

	var shape map[string]interface{}
	if err := json.Unmarshal([]byte(res.Text), &shape); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPlanning, err)
	}
	if err := ai.RequireFields(shape, map[string]string{
		"locations":  "array",
		"characters": "array",
		"quests":     "array",
	}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPlanning, err)
	}

	var plan Plan
	if err := res.DecodeStructured(&plan); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPlanning, err)
	}
	if len(plan.Locations) == 0 {
		return nil, fmt.Errorf("%w: plan has no locations", ErrPlanning)
	}
	g.logger.Info("World plan generated",
		zap.String("title", plan.Title),
		zap.Int("locations", len(plan.Locations)),
		zap.Int("characters", len(plan.Characters)),
		zap.Int("quests", len(plan.Quests)),
		zap.Duration("elapsed", res.Duration))
	return &plan, nil
}

// BuildNavigationMap строит таблицу room_id -> направление -> room_id из
// сырых списков связей плана. Все шесть канонических направлений
// присутствуют явно; неразрешенные - nil, никогда не опущены.
func BuildNavigationMap(locations []PlanLocation) map[string]map[string]*string {
	known := make(map[string]struct{}, len(locations))
	for _, loc := range locations {
		known[loc.ID] = struct{}{}
	}

	nav := make(map[string]map[string]*string, len(locations))
	canonical := []string{"north", "south", "east", "west", "up", "down"}
	for _, loc := range locations {
		exits := make(map[string]*string, len(canonical))
		for _, dir := range canonical {
			exits[dir] = nil
		}
		for _, conn := range loc.Connections {
			dir := world.NormalizeDirection(conn.Direction)
			if _, ok := exits[dir]; !ok {
				continue // Неканоническое направление из плана отбрасываем.
			}
			if _, ok := known[conn.TargetID]; !ok {
				continue // Цель вне плана остается nil.
			}
			target := conn.TargetID
			exits[dir] = &target
		}
		nav[loc.ID] = exits
	}
	return nav
}

// ExpandWorld разворачивает план в полный мир тремя независимыми вызовами
// генератора (комнаты, диалоги персонажей, детали квестов), которые идут
// конкурентно. Результаты соединяются по стабильным id плана; отсутствие
// любой цели соединения - полный отказ, частичные миры не возвращаются.
func (g *Generator) ExpandWorld(ctx context.Context, profile Profile, plan *Plan, seed int64) (*models.World, error) {
	var (
		wg        sync.WaitGroup
		genRooms  []models.GeneratedRoom
		genChars  []characterDetail
		genQuests []questDetail
		errRooms  error
		errChars  error
		errQuests error
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		genRooms, errRooms = g.expandRooms(ctx, plan, seed)
	}()
	go func() {
		defer wg.Done()
		genChars, errChars = g.expandCharacters(ctx, plan, seed)
	}()
	go func() {
		defer wg.Done()
		genQuests, errQuests = g.expandQuests(ctx, plan, seed)
	}()
	wg.Wait()

	for _, err := range []error{errRooms, errChars, errQuests} {
		if err != nil {
			return nil, err
		}
	}

	return g.joinWorld(profile, plan, genRooms, genChars, genQuests)
}

func (g *Generator) expandRooms(ctx context.Context, plan *Plan, seed int64) ([]models.GeneratedRoom, error) {
	userPrompt, _ := json.Marshal(map[string]interface{}{
		"setting":   plan.Setting,
		"locations": plan.Locations,
	})
	res, err := g.gateway.GenerateStructured(ctx, ai.StructuredRequest{
		Kind:         "rooms",
		SystemPrompt: roomsSystemPrompt,
		UserPrompt:   string(userPrompt),
		Params:       genParams(seed, 3000),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: rooms: %v", ErrExpansion, err)
	}
	var payload struct {
		Rooms []models.GeneratedRoom `json:"rooms"`
	}
	if err := res.DecodeStructured(&payload); err != nil {
		return nil, fmt.Errorf("%w: rooms: %v", ErrExpansion, err)
	}
	if err := world.ValidateGenerated(payload.Rooms); err != nil {
		return nil, fmt.Errorf("%w: rooms: %v", ErrExpansion, err)
	}
	return payload.Rooms, nil
}

func (g *Generator) expandCharacters(ctx context.Context, plan *Plan, seed int64) ([]characterDetail, error) {
	if len(plan.Characters) == 0 {
		return nil, nil
	}
	userPrompt, _ := json.Marshal(map[string]interface{}{
		"setting":    plan.Setting,
		"characters": plan.Characters,
	})
	res, err := g.gateway.GenerateStructured(ctx, ai.StructuredRequest{
		Kind:         "characters",
		SystemPrompt: charactersSystemPrompt,
		UserPrompt:   string(userPrompt),
		Params:       genParams(seed, 1500),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: characters: %v", ErrExpansion, err)
	}
	var payload struct {
		Characters []characterDetail `json:"characters"`
	}
	if err := res.DecodeStructured(&payload); err != nil {
		return nil, fmt.Errorf("%w: characters: %v", ErrExpansion, err)
	}
	return payload.Characters, nil
}

func (g *Generator) expandQuests(ctx context.Context, plan *Plan, seed int64) ([]questDetail, error) {
	if len(plan.Quests) == 0 {
		return nil, nil
	}
	userPrompt, _ := json.Marshal(map[string]interface{}{
		"setting": plan.Setting,
		"quests":  plan.Quests,
	})
	res, err := g.gateway.GenerateStructured(ctx, ai.StructuredRequest{
		Kind:         "quests",
		SystemPrompt: questsSystemPrompt,
		UserPrompt:   string(userPrompt),
		Params:       genParams(seed, 1500),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: quests: %v", ErrExpansion, err)
	}
	var payload struct {
		Quests []questDetail `json:"quests"`
	}
	if err := res.DecodeStructured(&payload); err != nil {
		return nil, fmt.Errorf("%w: quests: %v", ErrExpansion, err)
	}
	return payload.Quests, nil
}

// joinWorld соединяет результаты трех вызовов по id плана. Каждая
// запланированная сущность обязана найтись в сгенерированном контенте.
func (g *Generator) joinWorld(profile Profile, plan *Plan, genRooms []models.GeneratedRoom, genChars []characterDetail, genQuests []questDetail) (*models.World, error) {
	roomsByID := make(map[string]models.GeneratedRoom, len(genRooms))
	for _, r := range genRooms {
		roomsByID[r.RoomID] = r
	}
	charsByID := make(map[string]characterDetail, len(genChars))
	for _, c := range genChars {
		charsByID[c.ID] = c
	}
	questsByID := make(map[string]questDetail, len(genQuests))
	for _, q := range genQuests {
		questsByID[q.ID] = q
	}

	nav := BuildNavigationMap(plan.Locations)

	w := &models.World{
		ID:          uuid.New(),
		UserID:      profile.UserID,
		Title:       plan.Title,
		Description: plan.Description,
		Setting:     plan.Setting,
		StartRoomID: plan.StartID,
		CreatedAt:   time.Now().UTC(),
	}
	if w.StartRoomID == "" && len(plan.Locations) > 0 {
		w.StartRoomID = plan.Locations[0].ID
	}

	for _, loc := range plan.Locations {
		gen, ok := roomsByID[loc.ID]
		if !ok {
			return nil, fmt.Errorf("%w: no generated room for planned location %q", ErrExpansion, loc.ID)
		}
		w.Rooms = append(w.Rooms, models.Room{
			ID:          loc.ID,
			Name:        gen.Name,
			Description: gen.Description,
			Exits:       nav[loc.ID],
			Items:       gen.Items,
			NPCs:        gen.NPCs,
		})
	}

	for _, pc := range plan.Characters {
		detail, ok := charsByID[pc.ID]
		if !ok {
			return nil, fmt.Errorf("%w: no generated dialogue for planned character %q", ErrExpansion, pc.ID)
		}
		w.NPCs = append(w.NPCs, models.NPC{
			ID:          pc.ID,
			Name:        pc.Name,
			Location:    pc.LocationID,
			Personality: detail.Personality,
			Dialogue:    detail.Dialogue,
		})
	}

	for _, pq := range plan.Quests {
		detail, ok := questsByID[pq.ID]
		if !ok {
			return nil, fmt.Errorf("%w: no generated detail for planned quest %q", ErrExpansion, pq.ID)
		}
		steps := make([]models.QuestStep, 0, len(detail.Steps))
		for _, s := range detail.Steps {
			steps = append(steps, models.QuestStep{Description: s})
		}
		w.Quests = append(w.Quests, models.Quest{
			ID:          pq.ID,
			Title:       pq.Title,
			Description: detail.Description,
			Steps:       steps,
			Reward:      detail.Reward,
		})
	}

	if err := world.Validate(w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExpansion, err)
	}
	return w, nil
}

// GenerateWorld - полный цикл: план, развертывание, и при любом сбое -
// заготовленный мир по теме, чтобы вызывающий всегда получил играбельный мир.
func (g *Generator) GenerateWorld(ctx context.Context, profile Profile, seed int64) (*models.World, error) {
	plan, err := g.PlanWorld(ctx, profile, seed)
	if err == nil {
		var w *models.World
		w, err = g.ExpandWorld(ctx, profile, plan, seed)
		if err == nil {
			return w, nil
		}
	}

	g.logger.Warn("World generation failed, falling back to canned world",
		zap.String("theme", profile.Theme), zap.Error(err))
	return FallbackWorld(profile), nil
}
