package worldgen

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lrspeiser/Grue.is-sub000/internal/models"
)

func exit(target string) *string { return &target }

// cannedWorld строит один заготовленный мир. Комнаты создаются заново при
// каждом вызове: миры мутируются игрой и не могут шариться между сессиями.
type cannedWorld func() *models.World

var cannedWorlds = map[string]cannedWorld{
	"fantasy": func() *models.World {
		return &models.World{
			Title:       "The Hollow Keep",
			Description: "An abandoned keep swallowed by the forest, rumored to hide the Hollow Crown.",
			Setting:     "high fantasy",
			StartRoomID: "gatehouse",
			Rooms: []models.Room{
				{
					ID:          "gatehouse",
					Name:        "Ruined Gatehouse",
					Description: "Ivy strangles the portcullis. A brazier still smolders, as if someone left in a hurry.",
					Exits:       map[string]*string{"north": exit("courtyard"), "south": nil, "east": nil, "west": nil, "up": nil, "down": nil},
					Items:       []string{"torch"},
				},
				{
					ID:          "courtyard",
					Name:        "Overgrown Courtyard",
					Description: "Moss-eaten statues ring a dry fountain. The keep tower looms to the north.",
					Exits:       map[string]*string{"north": exit("tower"), "south": exit("gatehouse"), "east": exit("chapel"), "west": nil, "up": nil, "down": nil},
					Items:       []string{"rusty sword"},
					NPCs:        []string{"warden"},
				},
				{
					ID:          "chapel",
					Name:        "Collapsed Chapel",
					Description: "Stained glass litters the floor like frozen fire. Something glints beneath the altar.",
					Exits:       map[string]*string{"north": nil, "south": nil, "east": nil, "west": exit("courtyard"), "up": nil, "down": nil},
					Items:       []string{"silver key"},
				},
				{
					ID:          "tower",
					Name:        "Keep Tower",
					Description: "A spiral stair winds into darkness. Cold air falls from above like a held breath.",
					Exits:       map[string]*string{"north": nil, "south": exit("courtyard"), "east": nil, "west": nil, "up": nil, "down": nil},
				},
			},
			NPCs: []models.NPC{
				{ID: "warden", Name: "The Warden", Location: "courtyard", Personality: "weary, cryptic", Dialogue: "Turn back, or bring a light. The keep keeps what it catches."},
			},
			Quests: []models.Quest{
				{ID: "hollow-crown", Title: "Find the Hollow Crown", Description: "Recover the crown hidden somewhere in the keep.", Reward: 50,
					Steps: []models.QuestStep{{Description: "Find a source of light."}, {Description: "Unlock the tower stair."}}},
			},
		}
	},
	"scifi": func() *models.World {
		return &models.World{
			Title:       "Derelict Station Echo",
			Description: "A silent orbital station broadcasting a distress loop nobody answered for nine years.",
			Setting:     "derelict space station",
			StartRoomID: "airlock",
			Rooms: []models.Room{
				{
					ID:          "airlock",
					Name:        "Airlock Bay",
					Description: "Frost covers the inner door. Emergency lighting pulses a slow, red heartbeat.",
					Exits:       map[string]*string{"north": exit("corridor"), "south": nil, "east": nil, "west": nil, "up": nil, "down": nil},
					Items:       []string{"oxygen cell"},
				},
				{
					ID:          "corridor",
					Name:        "Service Corridor",
					Description: "Loose cabling sways in the recycled draft. A maintenance drone watches you, motionless.",
					Exits:       map[string]*string{"north": exit("bridge"), "south": exit("airlock"), "east": nil, "west": nil, "up": nil, "down": nil},
					NPCs:        []string{"drone"},
				},
				{
					ID:          "bridge",
					Name:        "Command Bridge",
					Description: "Every console is dark except one, still running a nine-year-old distress loop.",
					Exits:       map[string]*string{"north": nil, "south": exit("corridor"), "east": nil, "west": nil, "up": nil, "down": nil},
					Items:       []string{"command keycard"},
				},
			},
			NPCs: []models.NPC{
				{ID: "drone", Name: "Maintenance Drone", Location: "corridor", Personality: "literal, protective", Dialogue: "CREW MANIFEST: ONE. WELCOME ABOARD, CREW."},
			},
			Quests: []models.Quest{
				{ID: "silence-the-loop", Title: "Silence the Loop", Description: "Find out what happened and shut down the distress loop.", Reward: 50,
					Steps: []models.QuestStep{{Description: "Restore bridge power."}, {Description: "Read the captain's final log."}}},
			},
		}
	},
	"mystery": func() *models.World {
		return &models.World{
			Title:       "Blackwood Manor",
			Description: "A storm, a locked manor, and a host who never arrived.",
			Setting:     "gothic mystery",
			StartRoomID: "foyer",
			Rooms: []models.Room{
				{
					ID:          "foyer",
					Name:        "Manor Foyer",
					Description: "Rain hammers the leaded windows. A single wet footprint leads toward the study.",
					Exits:       map[string]*string{"north": exit("study"), "south": nil, "east": exit("parlor"), "west": nil, "up": nil, "down": nil},
					Items:       []string{"brass lantern"},
				},
				{
					ID:          "study",
					Name:        "Locked Study",
					Description: "Books lie open as if abandoned mid-sentence. The desk drawer hangs splintered.",
					Exits:       map[string]*string{"north": nil, "south": exit("foyer"), "east": nil, "west": nil, "up": nil, "down": nil},
					Items:       []string{"torn letter"},
				},
				{
					ID:          "parlor",
					Name:        "Cold Parlor",
					Description: "Tea for two, untouched and stone cold. The butler stands by the fire that is not lit.",
					Exits:       map[string]*string{"north": nil, "south": nil, "east": nil, "west": exit("foyer"), "up": nil, "down": nil},
					NPCs:        []string{"butler"},
				},
			},
			NPCs: []models.NPC{
				{ID: "butler", Name: "Graves the Butler", Location: "parlor", Personality: "precise, evasive", Dialogue: "The master is indisposed. Permanently, I fear."},
			},
			Quests: []models.Quest{
				{ID: "find-the-host", Title: "Find the Host", Description: "Discover what became of the master of Blackwood Manor.", Reward: 50,
					Steps: []models.QuestStep{{Description: "Search the study."}, {Description: "Question the butler."}}},
			},
		}
	},
}

// FallbackWorld возвращает заготовленный мир по теме профиля, гарантируя,
// что вызывающий всегда получает играбельный мир. Незнакомая тема
// сводится к fantasy.
func FallbackWorld(profile Profile) *models.World {
	key := strings.ToLower(strings.TrimSpace(profile.Theme))
	build, ok := cannedWorlds[key]
	if !ok {
		for candidate := range cannedWorlds {
			if strings.Contains(key, candidate) {
				build = cannedWorlds[candidate]
				ok = true
				break
			}
		}
	}
	if !ok {
		build = cannedWorlds["fantasy"]
	}

	w := build()
	w.ID = uuid.New()
	w.UserID = profile.UserID
	w.CreatedAt = time.Now().UTC()
	return w
}
