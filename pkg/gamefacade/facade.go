// Package gamefacade defines the narrow capability surface reflexes,
// skills, and the planner are allowed to touch on the game world, rather
// than a giant ambient `bot` object. The dynamic game-client adapter is
// the only concrete, network-facing implementation
// (pkg/gamefacade/wsadapter); everything else in this module talks to a
// GameFacade, never to a transport.
package gamefacade

import "context"

// Vec3 is a simple world position.
type Vec3 struct {
	X, Y, Z float64
}

// Snapshot is a point-in-time read of world state, the shape reflex
// Predicates are evaluated against when their trigger is world-state
// rather than signal-payload driven.
type Snapshot struct {
	Position  Vec3
	Health    float64
	Food      float64
	Inventory map[string]int
	Dimension string
}

// GameFacade is the full capability surface exposed to reflex actions,
// skills, and the scheduler. Mocks for tests implement this interface
// directly; pkg/gamefacade/wsadapter is the only implementation backed by
// a live game client.
type GameFacade interface {
	Position(ctx context.Context) (Vec3, error)
	Health(ctx context.Context) (float64, error)
	Inventory(ctx context.Context) (map[string]int, error)
	Snapshot(ctx context.Context) (Snapshot, error)

	Dig(ctx context.Context, block string) error
	Place(ctx context.Context, block string, ref Vec3) error
	Look(ctx context.Context, yaw, pitch float64) error
	Equip(ctx context.Context, item string, slot string) error
	Chat(ctx context.Context, text string) error
	SetControl(ctx context.Context, axis string, on bool) error
	Pathfind(ctx context.Context, goal Vec3) error
}

// GetByPath performs a dotted-path lookup into a nested
// map[string]any/[]any structure, matching the lookup Predicate
// evaluation needs against signal payloads or a flattened Snapshot. It
// returns (nil, false) for any missing segment rather than panicking,
// since reflex conditions must be safe to evaluate against arbitrary
// payload shapes.
func GetByPath(data map[string]any, path string) (any, bool) {
	segments := splitPath(path)
	var cur any = data
	for _, seg := range segments {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := m[seg]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

func splitPath(path string) []string {
	var out []string
	start := 0
	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			out = append(out, path[start:i])
			start = i + 1
		}
	}
	out = append(out, path[start:])
	return out
}

// SnapshotToMap flattens a Snapshot into the map[string]any shape
// GetByPath expects, so reflex Predicates written against "bot.health"-
// style paths can be evaluated uniformly whether the trigger source is a
// Signal payload or a world-state Snapshot.
func SnapshotToMap(s Snapshot) map[string]any {
	inv := make(map[string]any, len(s.Inventory))
	for k, v := range s.Inventory {
		inv[k] = v
	}
	return map[string]any{
		"bot": map[string]any{
			"position": map[string]any{
				"x": s.Position.X, "y": s.Position.Y, "z": s.Position.Z,
			},
			"health":    s.Health,
			"food":      s.Food,
			"inventory": inv,
			"dimension": s.Dimension,
		},
	}
}
