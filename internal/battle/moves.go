package battle

import (
	"fmt"
	"strings"

	"pokedex/internal/constants"
	"pokedex/internal/domain"
)

// SelectMoves picks the named moves out of the first few moves of pool. The
// selection must name exactly SelectedMoveCount distinct moves.
func SelectMoves(pool []domain.Move, names []string) ([]domain.Move, error) {
	if len(names) != constants.SelectedMoveCount {
		return nil, fmt.Errorf("%w: pick exactly %d moves, got %d", ErrInvalidSelection, constants.SelectedMoveCount, len(names))
	}
	candidates := pool[:min(len(pool), constants.SelectableMovePool)]

	picked := make([]domain.Move, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		key := strings.ToLower(strings.TrimSpace(name))
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("%w: move %q chosen twice", ErrInvalidSelection, key)
		}
		seen[key] = struct{}{}

		found := false
		for _, m := range candidates {
			if strings.EqualFold(m.Name, key) {
				picked = append(picked, m)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("%w: move %q is not selectable", ErrInvalidSelection, key)
		}
	}
	return picked, nil
}

// NewFindMatchRequest builds the matchmaking payload for item.
func NewFindMatchRequest(item domain.CatalogItem, moves []domain.Move) domain.FindMatchRequest {
	return domain.FindMatchRequest{
		DisplayName: titleCase(item.Name),
		ArtworkURL:  item.Artwork,
		CreatureID:  item.ID,
		Moves:       moves,
	}
}

// titleCase turns "mr-mime" into "Mr Mime".
func titleCase(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool { return r == '-' })
	for i, p := range parts {
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}
