package recipeshare

import (
	"github.com/DobryySoul/recipeshare/internal/recipe"
	"github.com/DobryySoul/recipeshare/internal/storage"
)

// Recipe is one stored record.
type Recipe = recipe.Record

// Visibility values of a Recipe.
const (
	Private = recipe.Private
	Public  = recipe.Public
)

// Codec encodes the full record list written to the store file.
type Codec = storage.Codec

// JSONCodec writes the file as a JSON array. It is the default.
type JSONCodec = storage.JSONCodec

// GobCodec writes the file with encoding/gob. Files are smaller but not
// readable by other tools.
type GobCodec = storage.GobCodec
