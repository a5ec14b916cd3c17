package services

import (
	"encoding/json"

	"github.com/dmitrijs2005/poikeeper/internal/server/fieldmap"
	"github.com/dmitrijs2005/poikeeper/internal/server/models"
)

// Item is a decrypted record ready to be returned to a caller.
type Item struct {
	ID      int64
	Version int64
	Refs    map[string]int64
	Values  fieldmap.Values
}

// hidden fields are always false/null on live records.
var hidden = map[string]bool{
	fieldmap.FieldIsDeleted: true,
	fieldmap.FieldDeletedAt: true,
}

// MarshalJSON renders the item as one flat object: id, version, reference
// columns and decrypted fields.
func (it *Item) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(it.Refs)+len(it.Values)+2)
	for name, v := range it.Values {
		if !hidden[name] {
			out[name] = v
		}
	}
	for name, id := range it.Refs {
		out[name] = id
	}
	out["id"] = it.ID
	out["version"] = it.Version
	return json.Marshal(out)
}

func newItem(rec *models.Record, vals fieldmap.Values) *Item {
	refs := make(map[string]int64, len(rec.Refs))
	for k, v := range rec.Refs {
		refs[k] = v
	}
	return &Item{ID: rec.ID, Version: rec.Version, Refs: refs, Values: vals}
}
