package supervisor

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// PostgresProbe pings a Postgres database over a fresh connection.
type PostgresProbe struct {
	dsn string
}

// NewPostgresProbe creates a probe for the given connection string.
func NewPostgresProbe(dsn string) *PostgresProbe {
	return &PostgresProbe{dsn: dsn}
}

// Ping connects and immediately disconnects. A fresh connection per attempt
// avoids holding a dead connection across container restarts.
func (p *PostgresProbe) Ping(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, p.dsn)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	return conn.Ping(ctx)
}
