package db

import (
	"io/fs"
	"strings"
	"testing"
)

func TestDriverURL(t *testing.T) {
	cases := map[string]string{
		"postgres://u:p@localhost:5432/db?sslmode=disable":   "pgx5://u:p@localhost:5432/db?sslmode=disable",
		"postgresql://u:p@localhost:5432/db?sslmode=disable": "pgx5://u:p@localhost:5432/db?sslmode=disable",
		"pgx5://already": "pgx5://already",
	}
	for in, want := range cases {
		if got := driverURL(in); got != want {
			t.Fatalf("driverURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(migrations, "migrations")
	if err != nil {
		t.Fatalf("read embedded migrations: %v", err)
	}
	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		}
	}
	if len(ups) == 0 {
		t.Fatalf("no up migrations embedded")
	}
	for name := range ups {
		if !downs[name] {
			t.Fatalf("migration %s has no down file", name)
		}
	}
}
