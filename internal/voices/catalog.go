package voices

import (
	"fmt"
	"strings"

	"github.com/chekaru-labs/chekaru-voice/internal/config"
)

// Voice pairs a model identifier with a human-readable display name.
type Voice struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Catalog holds the selectable voices for this deployment. It is static:
// entries come from the built-in list or from config, never from a
// remote directory.
type Catalog struct {
	voices []Voice
	byID   map[string]Voice
}

// defaults mirror the speaker presets shipped with the bundled model.
var defaults = []Voice{
	{ID: "v2/en_speaker_0", Name: "Deep Male (English)"},
	{ID: "v2/en_speaker_1", Name: "Warm Female (English)"},
	{ID: "v2/en_speaker_2", Name: "Young Male (English)"},
	{ID: "v2/en_speaker_3", Name: "Bright Female (English)"},
	{ID: "v2/en_speaker_4", Name: "Calm Narrator (English)"},
	{ID: "v2/en_speaker_5", Name: "Energetic Performer (English)"},
	{ID: "v2/en_speaker_6", Name: "Cinematic Deep Tone (English)"},
	{ID: "v2/en_speaker_7", Name: "Soft Female (English)"},
}

// New builds a catalog from config entries, falling back to the built-in
// list when none are configured. Configured entries replace the built-in
// list entirely.
func New(entries []config.VoiceConfig) *Catalog {
	list := append([]Voice(nil), defaults...)
	if len(entries) > 0 {
		list = nil
		for _, e := range entries {
			name := e.Name
			if name == "" {
				name = e.ID
			}
			list = append(list, Voice{ID: e.ID, Name: name})
		}
	}

	byID := make(map[string]Voice, len(list))
	for _, v := range list {
		byID[v.ID] = v
	}
	return &Catalog{voices: list, byID: byID}
}

// List returns all voices in catalog order.
func (c *Catalog) List() []Voice {
	return append([]Voice(nil), c.voices...)
}

// Resolve matches by ID first, then case-insensitively by display name.
func (c *Catalog) Resolve(idOrName string) (Voice, error) {
	if v, ok := c.byID[idOrName]; ok {
		return v, nil
	}
	for _, v := range c.voices {
		if strings.EqualFold(v.Name, idOrName) {
			return v, nil
		}
	}
	return Voice{}, fmt.Errorf("unknown voice %q", idOrName)
}

// Default returns the first catalog entry, matching the picker's initial
// selection.
func (c *Catalog) Default() Voice {
	if len(c.voices) == 0 {
		return Voice{}
	}
	return c.voices[0]
}
