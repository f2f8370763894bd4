package audit

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"
)

var csvHeader = []string{"id", "created_at", "entity_type", "entity_id", "action", "field_name", "old_value", "new_value", "user_id", "session_id"}

// WriteCSV writes entries in the flat layout handed to tax auditors.
func WriteCSV(w io.Writer, entries []Entry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, e := range entries {
		record := []string{
			strconv.FormatInt(e.ID, 10),
			e.CreatedAt.UTC().Format(time.RFC3339Nano),
			e.EntityType,
			e.EntityID,
			string(e.Action),
			e.FieldName,
			string(e.OldValue),
			string(e.NewValue),
			e.UserID,
			e.SessionID,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
