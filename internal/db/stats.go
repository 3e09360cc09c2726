package db

import (
	"context"
	"log"
	"time"
)

// TableStats summarizes one table
type TableStats struct {
	Name    string `json:"name"`
	Rows    int64  `json:"rows"`
	Columns int    `json:"columns"`
}

// Stats summarizes the connected database
type Stats struct {
	TableCount  int          `json:"table_count"`
	Tables      []TableStats `json:"tables"`
	TotalRows   int64        `json:"total_rows"`
	AverageRows int64        `json:"average_rows"`
	CollectedAt time.Time    `json:"collected_at"`
}

// Statistics introspects every table. A table that cannot be counted or
// described reports zeros; only failing to list tables is an error.
func (db *Database) Statistics(ctx context.Context) (*Stats, error) {
	tables, err := db.ListTables(ctx)
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		TableCount:  len(tables),
		Tables:      make([]TableStats, 0, len(tables)),
		CollectedAt: time.Now(),
	}
	for _, name := range tables {
		ts := TableStats{Name: name}
		if n, err := db.CountRows(ctx, name); err == nil {
			ts.Rows = n
		} else {
			log.Printf("⚠️ Failed to count rows of %s: %v", name, err)
		}
		if cols, err := db.Columns(ctx, name); err == nil {
			ts.Columns = len(cols)
		} else {
			log.Printf("⚠️ Failed to describe %s: %v", name, err)
		}
		stats.TotalRows += ts.Rows
		stats.Tables = append(stats.Tables, ts)
	}
	if stats.TableCount > 0 {
		stats.AverageRows = stats.TotalRows / int64(stats.TableCount)
	}
	return stats, nil
}
