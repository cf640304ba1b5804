package repo

import "testing"

func TestParseOperator(t *testing.T) {
	tests := []struct {
		in   string
		want Operator
		ok   bool
	}{
		{"=", OpEqual, true},
		{"<>", OpNotEqualAlt, true},
		{">=", OpGreaterThanOrEqual, true},
		{"like", OpLike, true},
		{"not   like", OpNotLike, true},
		{" is null ", OpIsNull, true},
		{"ilike", OpILike, true},
		{"; DROP TABLE users", "", false},
		{"SOUNDS LIKE", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := ParseOperator(tt.in)
		if ok != tt.ok {
			t.Errorf("ParseOperator(%q) ok = %v, want %v", tt.in, ok, tt.ok)
			continue
		}
		if ok && got != tt.want {
			t.Errorf("ParseOperator(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseTrashedMode(t *testing.T) {
	tests := map[string]TrashedMode{
		"":            TrashedNone,
		"none":        TrashedNone,
		"withTrashed": TrashedWith,
		"WITHTRASHED": TrashedWith,
		"onlyTrashed": TrashedOnly,
		"onlytrashed": TrashedOnly,
	}
	for in, want := range tests {
		got, err := ParseTrashedMode(in)
		if err != nil {
			t.Errorf("ParseTrashedMode(%q) error: %v", in, err)
		}
		if got != want {
			t.Errorf("ParseTrashedMode(%q) = %v, want %v", in, got, want)
		}
	}

	if _, err := ParseTrashedMode("sometimes"); !IsInvalidArgument(err) {
		t.Errorf("expected invalid argument, got %v", err)
	}
}

func TestTrashedModeString(t *testing.T) {
	if TrashedOnly.String() != "onlyTrashed" || TrashedWith.String() != "withTrashed" || TrashedNone.String() != "none" {
		t.Error("unexpected trashed mode names")
	}
}

func TestConfigDefaults(t *testing.T) {
	var cfg Config
	if cfg.PageLimit() != 15 {
		t.Errorf("expected default page limit 15, got %d", cfg.PageLimit())
	}
	if cfg.PageName() != "page" {
		t.Errorf("expected default page name, got %q", cfg.PageName())
	}

	cfg.Pagination.Limit = 50
	if cfg.PageLimit() != 50 {
		t.Errorf("expected configured limit 50, got %d", cfg.PageLimit())
	}
}

func TestConfigProviderOptions(t *testing.T) {
	cfg := Config{Options: map[string]interface{}{
		"gorm": map[string]interface{}{"log_level": "silent"},
		"bun":  "not a map",
	}}
	if cfg.ProviderOptions("gorm")["log_level"] != "silent" {
		t.Error("expected gorm options")
	}
	if cfg.ProviderOptions("bun") != nil {
		t.Error("expected nil for malformed options")
	}
	if cfg.ProviderOptions("mongo") != nil {
		t.Error("expected nil for missing options")
	}
}

func TestDialectFor(t *testing.T) {
	cases := map[string]string{
		"sqlite3":    DialectSQLite,
		"postgres":   DialectPgSQL,
		"MySQL":      DialectMySQL,
		"sqlserver":  DialectMsSQL,
		"clickhouse": "",
	}
	for in, want := range cases {
		if got := DialectFor(in); got != want {
			t.Errorf("DialectFor(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDatePartExpr(t *testing.T) {
	expr, err := DatePartExpr(DialectSQLite, DatePartYear, "created_at")
	if err != nil {
		t.Fatal(err)
	}
	if expr != "CAST(strftime('%Y', created_at) AS INTEGER)" {
		t.Errorf("unexpected sqlite expression %q", expr)
	}

	expr, _ = DatePartExpr(DialectPgSQL, DatePartMonth, "created_at")
	if expr != "EXTRACT(MONTH FROM created_at)" {
		t.Errorf("unexpected postgres expression %q", expr)
	}

	expr, _ = DatePartExpr(DialectMySQL, DatePartDate, "created_at")
	if expr != "DATE(created_at)" {
		t.Errorf("unexpected mysql expression %q", expr)
	}

	if _, err := DatePartExpr("oracle", DatePartDay, "x"); !IsUnsupported(err) {
		t.Errorf("expected unsupported dialect error, got %v", err)
	}
}
