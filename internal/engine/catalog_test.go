package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/conductio-api/internal/conductio"
)

func TestCategorize(t *testing.T) {
	t.Parallel()

	instruments := []conductio.Instrument{
		{ID: 81, Name: "lead_2_sawtooth", Category: "Synth"},
		{ID: 118, Name: "synth_drum", Category: "Percussive"},
		{ID: 1, Name: "bright_acoustic_piano", Category: "Piano"},
		{ID: 0, Name: "acoustic_grand_piano", Category: "Piano"},
		{ID: 40, Name: "violin", Category: "Popular"},
		{ID: 104, Name: "sitar", Category: "Ethnic"},
		{ID: 0, Name: "acoustic_grand_piano", Category: "Popular"},
	}

	categories := Categorize(instruments)
	names := make([]string, len(categories))
	for i, c := range categories {
		names[i] = c.Name
	}
	require.Equal(t, []string{"Popular", "Piano", "Synth", "Ethnic", "Percussive"}, names)

	require.Equal(t, 0, categories[0].Instruments[0].ID)
	require.Equal(t, 40, categories[0].Instruments[1].ID)
	require.Equal(t, "acoustic_grand_piano", categories[1].Instruments[0].Name)
	require.Equal(t, "bright_acoustic_piano", categories[1].Instruments[1].Name)
}

func TestCategorizeEmpty(t *testing.T) {
	t.Parallel()

	require.Empty(t, Categorize(nil))
}
