package models

import (
	"encoding/json"

	"github.com/jmoiron/sqlx/types"
)

// NewMetadata encodes m for a jsonb column. A nil map becomes {}.
func NewMetadata(m map[string]interface{}) types.JSONText {
	if m == nil {
		return types.JSONText("{}")
	}
	b, err := json.Marshal(m)
	if err != nil {
		return types.JSONText("{}")
	}
	return types.JSONText(b)
}
