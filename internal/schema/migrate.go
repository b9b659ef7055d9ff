package schema

import "github.com/candre23/AI-CharCard-Editor/internal/types"

// MigrateV1ToV2 wraps a legacy card body in a chara_card_v2 envelope. The
// function is total: every V1 field maps one-to-one into the V2 data
// object, unknown keys ride along verbatim, and the V2-only collections
// are initialized empty. Nothing is ever dropped.
func MigrateV1ToV2(data types.CardData) *types.CharacterCard {
	card := &types.CharacterCard{
		Spec:        types.SpecV2,
		SpecVersion: types.SpecVersionV2,
		Data:        data,
	}
	card.Normalize()
	return card
}
