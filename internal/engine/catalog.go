package engine

import (
	"sort"

	"github.com/JakeFAU/conductio-api/internal/conductio"
)

// catalogScript prints the engine's instrument catalog as a JSON array of
// {id, name, displayName, category}.
const catalogScript = `
from generation.instruments import list_instruments_by_category
import json
categories = list_instruments_by_category()
result = []
for category, instruments in categories.items():
    for name, program in instruments:
        result.append({
            'id': program,
            'name': name,
            'displayName': name.replace('_', ' ').title(),
            'category': category
        })
print(json.dumps(result))
`

// CategoryOrder is the preferred display order; other categories follow
// alphabetically.
var CategoryOrder = []string{"Popular", "Piano", "Guitar", "Bass", "Strings", "Brass", "Woodwinds", "Synth"}

// Categorize groups instruments by category, sorting each group by program
// number and the groups by CategoryOrder.
func Categorize(instruments []conductio.Instrument) []conductio.InstrumentCategory {
	groups := make(map[string][]conductio.Instrument)
	var names []string
	for _, inst := range instruments {
		if _, ok := groups[inst.Category]; !ok {
			names = append(names, inst.Category)
		}
		groups[inst.Category] = append(groups[inst.Category], inst)
	}

	rank := make(map[string]int, len(CategoryOrder))
	for i, name := range CategoryOrder {
		rank[name] = i
	}
	sort.SliceStable(names, func(a, b int) bool {
		ra, aKnown := rank[names[a]]
		rb, bKnown := rank[names[b]]
		switch {
		case aKnown && bKnown:
			return ra < rb
		case aKnown:
			return true
		case bKnown:
			return false
		default:
			return names[a] < names[b]
		}
	})

	out := make([]conductio.InstrumentCategory, 0, len(names))
	for _, name := range names {
		members := groups[name]
		sort.SliceStable(members, func(a, b int) bool { return members[a].ID < members[b].ID })
		out = append(out, conductio.InstrumentCategory{Name: name, Instruments: members})
	}
	return out
}
