package migrations

import (
	"embed"
	"reflect"
	"testing"
)

func TestSQLFiles_Sorted(t *testing.T) {
	for _, tc := range []struct {
		dir  string
		fsys embed.FS
	}{
		{"postgres", PostgresFS},
		{"clickhouse", ClickhouseFS},
	} {
		t.Run(tc.dir, func(t *testing.T) {
			files, err := sqlFiles(tc.fsys, tc.dir)
			if err != nil {
				t.Fatalf("sqlFiles() error = %v", err)
			}
			if len(files) == 0 {
				t.Fatal("expected embedded migrations")
			}
			for i := 1; i < len(files); i++ {
				if files[i-1] >= files[i] {
					t.Errorf("migrations not sorted: %s before %s", files[i-1], files[i])
				}
			}
		})
	}
}

func TestSplitStatements(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		want []string
	}{
		{
			name: "comments and blank lines",
			sql: `-- header; with a semicolon
CREATE TABLE a (x UInt8) ENGINE = Memory;

CREATE TABLE b (y UInt8) ENGINE = Memory; -- trailing
`,
			want: []string{
				"CREATE TABLE a (x UInt8) ENGINE = Memory",
				"CREATE TABLE b (y UInt8) ENGINE = Memory",
			},
		},
		{
			name: "semicolon in literal",
			sql:  `INSERT INTO t VALUES ('a;b'); SELECT 'it''s; fine'`,
			want: []string{
				`INSERT INTO t VALUES ('a;b')`,
				`SELECT 'it''s; fine'`,
			},
		},
		{
			name: "escaped quote",
			sql:  `SELECT 'x\';y'; SELECT 1`,
			want: []string{`SELECT 'x\';y'`, `SELECT 1`},
		},
		{
			name: "dashes in literal",
			sql:  `SELECT '--not a comment'`,
			want: []string{`SELECT '--not a comment'`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitStatements(tt.sql)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("splitStatements() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSplitStatements_EmbeddedClickhouse(t *testing.T) {
	data, err := ClickhouseFS.ReadFile("clickhouse/001_swap_fills.sql")
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	stmts := splitStatements(string(data))
	if len(stmts) != 1 {
		t.Fatalf("splitStatements() = %d statements, want 1", len(stmts))
	}
}

func TestDatabaseFromDSN(t *testing.T) {
	db, err := databaseFromDSN("clickhouse://default@localhost:9000/memeetf")
	if err != nil {
		t.Fatalf("databaseFromDSN() error = %v", err)
	}
	if db != "memeetf" {
		t.Errorf("databaseFromDSN() = %q, want memeetf", db)
	}

	for _, dsn := range []string{
		"clickhouse://localhost:9000",
		"clickhouse://localhost:9000/db;DROP",
	} {
		if _, err := databaseFromDSN(dsn); err == nil {
			t.Errorf("databaseFromDSN(%q) expected error", dsn)
		}
	}
}
