package db

import "testing"

func TestNormalizeDSN(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"url passthrough", "postgres://u:p@db:5432/liveryard?sslmode=disable", "postgres://u:p@db:5432/liveryard?sslmode=disable"},
		{"quoted", `"host=db user=u dbname=liveryard sslmode=require"`, "host=db user=u dbname=liveryard sslmode=require"},
		{"sslmode defaulted", "host=db user=u dbname=liveryard", "host=db user=u dbname=liveryard sslmode=disable"},
		{"whitespace collapsed", "  host=db   user=u  dbname=liveryard sslmode=require ", "host=db user=u dbname=liveryard sslmode=require"},
		{"garbage unchanged", "not-a-dsn", "not-a-dsn"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := NormalizeDSN(c.in); got != c.want {
				t.Fatalf("got %q want %q", got, c.want)
			}
		})
	}
}

func TestToURLDSN(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"url passthrough", "postgres://u:p@db:5432/liveryard", "postgres://u:p@db:5432/liveryard"},
		{"full kv", "host=db port=5433 user=u password=p dbname=liveryard sslmode=require", "postgres://u:p@db:5433/liveryard?sslmode=require"},
		{"defaults", "user=u password=p dbname=liveryard", "postgres://u:p@localhost:5432/liveryard"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := ToURLDSN(c.in); got != c.want {
				t.Fatalf("got %q want %q", got, c.want)
			}
		})
	}
}
