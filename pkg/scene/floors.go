package scene

import (
	"regexp"
	"strings"
)

// stageRooms maps dungeon floor to its canonical room tile map.
var stageRooms = map[int]string{
	1: "corridor",
	2: "chamber",
	3: "crossroads",
	4: "shrine",
	5: "boss_room",
}

// floorEnemies is the spawn pool per floor when the narration names no
// recognizable enemy type.
var floorEnemies = map[int][]string{
	1: {"slime", "goblin"},
	2: {"skeleton", "goblin"},
	3: {"wraith", "goblin", "skeleton"},
	4: {"wraith", "golem"},
	5: {"golem", "dragon"},
}

// enemyTypeList are the archetypes that count as kills when removed.
// Doors, chests and NPCs share the entity namespace but are not here.
// Order matters for DetectEnemyType ties.
var enemyTypeList = []string{"skeleton", "slime", "goblin", "wraith", "golem", "dragon"}

var enemyTypes = func() map[string]bool {
	m := make(map[string]bool, len(enemyTypeList))
	for _, t := range enemyTypeList {
		m[t] = true
	}
	return m
}()

var reEntitySeq = regexp.MustCompile(`_\d+$`)

// RoomForFloor returns the canonical room for a floor, defaulting to
// chamber for floors outside the stage table.
func RoomForFloor(floor int) string {
	if room, ok := stageRooms[floor]; ok {
		return room
	}
	return "chamber"
}

// EnemiesForFloor returns the floor's spawn pool.
func EnemiesForFloor(floor int) []string {
	if pool, ok := floorEnemies[floor]; ok {
		return pool
	}
	return []string{"slime"}
}

func IsEnemyType(typ string) bool {
	return enemyTypes[typ]
}

// EntityType strips the per-type counter suffix from an entity id:
// "goblin_2" → "goblin".
func EntityType(id string) string {
	return reEntitySeq.ReplaceAllString(id, "")
}

// EnemyEntities filters entity ids down to enemy archetypes.
func EnemyEntities(entities []string) []string {
	var out []string
	for _, id := range entities {
		if IsEnemyType(EntityType(id)) {
			out = append(out, id)
		}
	}
	return out
}

// DetectEnemyType finds the first known enemy archetype mentioned in
// raw narration text, or "" when none is.
func DetectEnemyType(rawText string) string {
	lower := strings.ToLower(rawText)
	for _, typ := range enemyTypeList {
		if strings.Contains(lower, typ) {
			return typ
		}
	}
	return ""
}
