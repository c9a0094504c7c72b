package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/lrspeiser/Grue.is-sub000/internal/models"
	"github.com/lrspeiser/Grue.is-sub000/internal/session"
	"github.com/lrspeiser/Grue.is-sub000/internal/world"
)

// verbAliases сводит синонимы и сокращения глаголов к каноническому виду.
var verbAliases = map[string]string{
	"look": "look", "l": "look", "examine": "look",
	"go": "go", "move": "go", "walk": "go",
	"take": "take", "get": "take", "grab": "take", "pick": "take",
	"drop": "drop", "leave": "drop",
	"inventory": "inventory", "inv": "inventory", "i": "inventory",
	"talk": "talk", "speak": "talk",
	"use": "use",
	"help": "help", "?": "help",
}

// ParserStrategy - детерминированный режим: команда разбивается на
// глагол и аргумент, сопоставляется с фиксированной таблицей глаголов
// и мутирует состояние прямыми правилами, без обращения к генератору.
type ParserStrategy struct{}

// NewParserStrategy создает детерминированную стратегию.
func NewParserStrategy() *ParserStrategy { return &ParserStrategy{} }

func (s *ParserStrategy) Name() string { return "parser" }

func (s *ParserStrategy) Process(ctx context.Context, sess *session.Session, rawCommand string) (*Result, error) {
	w := sess.World
	state := sess.State

	fields := strings.Fields(strings.TrimSpace(rawCommand))
	if len(fields) == 0 {
		return &Result{Narrative: "Say something. Type 'help' if the darkness confuses you."}, nil
	}

	verb := strings.ToLower(fields[0])
	arg := strings.Join(fields[1:], " ")

	// Голое направление ("north", "n") трактуется как go.
	if normalized := world.NormalizeDirection(verb); normalized != verb || isCanonicalDirection(verb) {
		arg = verb
		verb = "go"
	} else if canonical, ok := verbAliases[verb]; ok {
		verb = canonical
	} else {
		return &Result{Narrative: fmt.Sprintf("You don't know how to %q. Type 'help' for what you can do.", verb)}, nil
	}

	room, err := world.FindRoom(w, state.CurrentRoomID)
	if err != nil {
		return nil, fmt.Errorf("%w: current room %q", ErrInvariantViolation, state.CurrentRoomID)
	}

	switch verb {
	case "look":
		return &Result{Narrative: describeRoom(w, room)}, nil
	case "go":
		return s.handleGo(w, state, room, arg)
	case "take":
		return s.handleTake(w, state, room, arg)
	case "drop":
		return s.handleDrop(w, state, room, arg)
	case "inventory":
		if len(state.Inventory) == 0 {
			return &Result{Narrative: "You are carrying nothing."}, nil
		}
		return &Result{Narrative: "You are carrying: " + strings.Join(state.Inventory, ", ") + "."}, nil
	case "talk":
		return s.handleTalk(w, room, arg)
	case "use":
		return s.handleUse(state, arg)
	case "help":
		return &Result{Narrative: "Commands: look, go <direction>, take <item>, drop <item>, inventory, talk <someone>, use <item>, help. Directions: north, south, east, west, up, down (or n/s/e/w/u/d)."}, nil
	}
	return &Result{Narrative: "Nothing happens."}, nil
}

func isCanonicalDirection(s string) bool {
	switch s {
	case "north", "south", "east", "west", "up", "down":
		return true
	}
	return false
}

func describeRoom(w *models.World, room *models.Room) string {
	var b strings.Builder
	b.WriteString(room.Name)
	b.WriteString("\n")
	b.WriteString(room.Description)
	if len(room.Items) > 0 {
		b.WriteString("\nYou see: " + strings.Join(room.Items, ", ") + ".")
	}
	for _, npcID := range room.NPCs {
		for _, npc := range w.NPCs {
			if npc.ID == npcID || npc.Name == npcID {
				b.WriteString("\n" + npc.Name + " is here.")
			}
		}
	}
	if exits := world.AvailableExits(room); len(exits) > 0 {
		b.WriteString("\nExits: " + strings.Join(exits, ", ") + ".")
	} else {
		b.WriteString("\nThere are no obvious exits.")
	}
	return b.String()
}

// handleGo двигает игрока, только если у текущей комнаты есть непустой
// выход в нормализованном направлении и цель существует в мире. Иначе -
// перечисление доступных выходов без изменения состояния.
func (s *ParserStrategy) handleGo(w *models.World, state *models.GameState, room *models.Room, arg string) (*Result, error) {
	exitsMsg := func() string {
		exits := world.AvailableExits(room)
		if len(exits) == 0 {
			return "There is no way out of here."
		}
		return "You can go: " + strings.Join(exits, ", ") + "."
	}

	if strings.TrimSpace(arg) == "" {
		return &Result{Narrative: "Go where? " + exitsMsg()}, nil
	}

	dir := world.NormalizeDirection(arg)
	target, ok := room.Exits[dir]
	if !ok || target == nil {
		return &Result{Narrative: fmt.Sprintf("You can't go %s from here. %s", dir, exitsMsg())}, nil
	}
	next, err := world.FindRoom(w, *target)
	if err != nil {
		// Мир ссылается на несуществующую комнату: диагностика вместо краха.
		return nil, fmt.Errorf("%w: exit %s of room %s points to %q", ErrInvariantViolation, dir, room.ID, *target)
	}

	state.CurrentRoomID = next.ID
	return &Result{Narrative: describeRoom(w, next), StateChanged: true}, nil
}

func (s *ParserStrategy) handleTake(w *models.World, state *models.GameState, room *models.Room, arg string) (*Result, error) {
	if strings.TrimSpace(arg) == "" {
		return &Result{Narrative: "Take what?"}, nil
	}
	newInv, name, err := world.ApplyItemTransfer(w, room.ID, arg, world.TransferTake, state.Inventory)
	if err != nil {
		return &Result{Narrative: fmt.Sprintf("You don't see any %s here.", arg)}, nil
	}
	state.Inventory = newInv
	return &Result{
		Narrative:    fmt.Sprintf("You take the %s.", name),
		StateChanged: true,
		RoomUpdates:  []models.RoomItemUpdate{{RoomID: room.ID, Remove: []string{name}}},
	}, nil
}

func (s *ParserStrategy) handleDrop(w *models.World, state *models.GameState, room *models.Room, arg string) (*Result, error) {
	if strings.TrimSpace(arg) == "" {
		return &Result{Narrative: "Drop what?"}, nil
	}
	newInv, name, err := world.ApplyItemTransfer(w, room.ID, arg, world.TransferDrop, state.Inventory)
	if err != nil {
		return &Result{Narrative: fmt.Sprintf("You aren't carrying any %s.", arg)}, nil
	}
	state.Inventory = newInv
	return &Result{
		Narrative:    fmt.Sprintf("You drop the %s.", name),
		StateChanged: true,
		RoomUpdates:  []models.RoomItemUpdate{{RoomID: room.ID, Add: []string{name}}},
	}, nil
}

func (s *ParserStrategy) handleTalk(w *models.World, room *models.Room, arg string) (*Result, error) {
	if len(room.NPCs) == 0 {
		return &Result{Narrative: "There is nobody here to talk to."}, nil
	}
	query := strings.ToLower(strings.TrimSpace(arg))
	for _, npcID := range room.NPCs {
		for _, npc := range w.NPCs {
			if npc.ID != npcID && npc.Name != npcID {
				continue
			}
			if query == "" || strings.Contains(strings.ToLower(npc.Name), query) || strings.Contains(strings.ToLower(npc.ID), query) {
				if npc.Dialogue != "" {
					return &Result{Narrative: fmt.Sprintf("%s says: \"%s\"", npc.Name, npc.Dialogue)}, nil
				}
				return &Result{Narrative: fmt.Sprintf("%s has nothing to say.", npc.Name)}, nil
			}
		}
	}
	return &Result{Narrative: fmt.Sprintf("You don't see %s here.", arg)}, nil
}

func (s *ParserStrategy) handleUse(state *models.GameState, arg string) (*Result, error) {
	if strings.TrimSpace(arg) == "" {
		return &Result{Narrative: "Use what?"}, nil
	}
	if _, name, ok := world.MatchItem(state.Inventory, arg); ok {
		return &Result{Narrative: fmt.Sprintf("You fiddle with the %s, but nothing obvious happens.", name)}, nil
	}
	return &Result{Narrative: fmt.Sprintf("You aren't carrying any %s.", arg)}, nil
}
