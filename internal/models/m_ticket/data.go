package m_ticket

import (
	"cloud.google.com/go/spanner"
)

// UpsertMutation builds an InsertOrUpdate from a merged values map. The
// caller (repo) owns the merge rules: scalars are overwritten, timestamp
// columns keep the existing value when the incoming one is null.
func UpsertMutation(values map[string]interface{}) *spanner.Mutation {
	cols := make([]string, 0, len(values))
	vals := make([]interface{}, 0, len(values))
	for c, v := range values {
		cols = append(cols, c)
		vals = append(vals, v)
	}
	return spanner.InsertOrUpdate(TableName, cols, vals)
}
