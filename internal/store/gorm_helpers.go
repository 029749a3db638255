package store

import (
	"github.com/rs/zerolog"
	"gorm.io/gorm/clause"
)

// onConflictDoNothing implements the "insert-or-ignore by <column>" dedup
// semantics spec.md §6 requires for transactions (dedup by signature).
func onConflictDoNothing(column string) clause.OnConflict {
	return clause.OnConflict{
		Columns:   []clause.Column{{Name: column}},
		DoNothing: true,
	}
}

// zerologWriter adapts zerolog.Logger to gorm's logger.Writer interface so
// GORM's own query/slow-query logging flows through the same structured
// logger as the rest of the process.
type zerologWriter struct {
	logger zerolog.Logger
}

func (w *zerologWriter) Printf(format string, args ...any) {
	w.logger.Debug().Msgf(format, args...)
}
