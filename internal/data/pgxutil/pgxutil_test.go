package pgxutil

import (
	"database/sql"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
)

func TestTxOptions(t *testing.T) {
	tests := []struct {
		name string
		in   *sql.TxOptions
		want pgx.TxOptions
	}{
		{name: "nil uses server defaults", in: nil, want: pgx.TxOptions{}},
		{name: "default level", in: &sql.TxOptions{}, want: pgx.TxOptions{}},
		{
			name: "serializable",
			in:   &sql.TxOptions{Isolation: sql.LevelSerializable},
			want: pgx.TxOptions{IsoLevel: pgx.Serializable},
		},
		{
			name: "read only repeatable read",
			in:   &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true},
			want: pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly},
		},
		{
			name: "read committed",
			in:   &sql.TxOptions{Isolation: sql.LevelReadCommitted},
			want: pgx.TxOptions{IsoLevel: pgx.ReadCommitted},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, txOptions(tt.in))
		})
	}
}
