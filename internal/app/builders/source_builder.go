package builders

import (
	"io"

	"github.com/cockroachdb/errors"

	"github.com/aatumaykin/nexarchive/internal/archive"
	"github.com/aatumaykin/nexarchive/internal/config"
	"github.com/aatumaykin/nexarchive/internal/logger"
	"github.com/aatumaykin/nexarchive/internal/sink"
	"github.com/aatumaykin/nexarchive/internal/source"
	"github.com/aatumaykin/nexarchive/internal/ticks"
)

type SourceBuilder struct {
	config *config.Config
	logger *logger.Logger
}

func NewSourceBuilder(cfg *config.Config, log *logger.Logger) *SourceBuilder {
	return &SourceBuilder{config: cfg, logger: log}
}

// Build opens the configured message source. Titles seen through it are
// recorded in archive. The returned closer is nil when nothing needs closing.
func (b *SourceBuilder) Build(archiveDB *sink.SQLite) (archive.Source, io.Closer, error) {
	var (
		src    archive.Source
		closer io.Closer
	)

	switch b.config.Source.Kind {
	case "sqlite":
		db, err := source.OpenSQLite(b.config.Source.Path, b.logger)
		if err != nil {
			return nil, nil, errors.Wrap(err, "failed to open history database")
		}
		src, closer = db, db
	case "tdexport":
		loc, err := ticks.LoadLocation(b.config.Source.Timezone)
		if err != nil {
			return nil, nil, err
		}
		src = source.NewTDExport(b.config.Source.Path, loc, b.logger)
	default:
		return nil, nil, errors.Newf("unsupported source kind: %s", b.config.Source.Kind)
	}

	b.logger.Info("message source ready",
		logger.Field{Key: "kind", Value: b.config.Source.Kind},
		logger.Field{Key: "path", Value: b.config.Source.Path})

	if archiveDB != nil {
		src = sink.WithTitles(src, archiveDB)
	}
	return src, closer, nil
}
