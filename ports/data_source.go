package ports

import (
	"context"

	"conjoint/domain/conjoint"
)

// DataSource yields a long-format response table, whatever the file format.
type DataSource interface {
	ReadTable(ctx context.Context) (*conjoint.Table, error)
}
