package a

const columns = "id, type, data"

const scopedColumns = "id, workspace_id, type"

const deleteAll = "DELETE FROM activities" // want "SQL on activities is not scoped by workspace_id"

func queries(where string) []string {
	return []string{
		"SELECT id FROM entities WHERE id = ?",                     // want "SQL on entities is not scoped by workspace_id"
		"SELECT " + columns + " FROM entities e WHERE e.id = ?",    // want "SQL on entities is not scoped by workspace_id"
		`UPDATE relationships SET strength_score = ? WHERE id = ?`, // want "SQL on relationships is not scoped by workspace_id"
		"INSERT INTO entity_types (name) VALUES (?)",               // want "SQL on entity_types is not scoped by workspace_id"
		"SELECT id FROM entities WHERE workspace_id = ? AND id = ?",
		"SELECT " + scopedColumns + " FROM entities",
		"SELECT id FROM relationships WHERE " + where,
		"SELECT 1 FROM users WHERE id = ?",
		"updating entities",
		deleteAll,
	}
}
