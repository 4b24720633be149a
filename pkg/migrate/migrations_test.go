package migrate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestMigrationsDirIsValid(t *testing.T) {
	if err := ValidateDir("migrations"); err != nil {
		t.Fatalf("validate migrations: %v", err)
	}
}

func TestMigrationsDeclareGuardedTables(t *testing.T) {
	content := readAllMigrations(t)
	checks := []string{
		"CREATE TABLE IF NOT EXISTS carts",
		"CREATE TABLE IF NOT EXISTS cart_items",
		"CREATE TABLE IF NOT EXISTS promotions",
		"CREATE TABLE IF NOT EXISTS promotion_usages",
		"CREATE TABLE IF NOT EXISTS loyalty_wallets",
		"CREATE TABLE IF NOT EXISTS loyalty_transactions",
		"CREATE TABLE IF NOT EXISTS qr_codes",
		"CREATE TABLE IF NOT EXISTS qr_code_scans",
		"CREATE TABLE IF NOT EXISTS receipt_submissions",
		"CREATE TABLE IF NOT EXISTS orders",
		"CREATE TABLE IF NOT EXISTS outbox_events",
		"points bigint NOT NULL CHECK (points <> 0)",
		"CONSTRAINT chk_qr_codes_total_uses",
		"CONSTRAINT chk_promotions_usage_limit",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_orders_cart_id",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_loyalty_wallets_customer_id",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestValidateDirRejectsBadFiles(t *testing.T) {
	dir := t.TempDir()
	if err := ValidateDir(dir); err == nil {
		t.Fatal("expected error for empty dir")
	}

	if err := os.WriteFile(filepath.Join(dir, "bad-name.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := ValidateDir(dir); err == nil {
		t.Fatal("expected filename error")
	}
}

func TestValidateDirRejectsUnsafeContent(t *testing.T) {
	cases := map[string]string{
		"unguarded table": "-- +goose Up\nCREATE TABLE widgets (id int);\n-- +goose Down\nDROP TABLE widgets;\n",
		"unguarded index": "-- +goose Up\nCREATE UNIQUE INDEX idx_w ON widgets (id);\n-- +goose Down\nDROP INDEX idx_w;\n",
		"empty down":      "-- +goose Up\nCREATE TABLE IF NOT EXISTS widgets (id int);\n-- +goose Down\n-- nothing\n",
		"down before up":  "-- +goose Down\nDROP TABLE widgets;\n-- +goose Up\nCREATE TABLE IF NOT EXISTS widgets (id int);\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			if err := os.WriteFile(filepath.Join(dir, "20260101000000_widgets.sql"), []byte(body), 0o644); err != nil {
				t.Fatalf("write: %v", err)
			}
			if err := ValidateDir(dir); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestValidateDirRejectsDuplicateVersions(t *testing.T) {
	dir := t.TempDir()
	body := []byte("-- +goose Up\nSELECT 1;\n-- +goose Down\nSELECT 1;\n")
	for _, name := range []string{"20260101000000_a.sql", "20260101000000_b.sql"} {
		if err := os.WriteFile(filepath.Join(dir, name), body, 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := ValidateDir(dir); err == nil {
		t.Fatal("expected duplicate version error")
	}
}

func TestRequirePostgres(t *testing.T) {
	for _, driver := range []string{"", "postgres", "PGX"} {
		if err := RequirePostgres(driver); err != nil {
			t.Errorf("driver %q: %v", driver, err)
		}
	}
	if err := RequirePostgres("sqlite"); err == nil {
		t.Error("expected sqlite to be rejected")
	}
}

func TestParseVersion(t *testing.T) {
	if v, err := parseVersion(" 20260101000000 "); err != nil || v != 20260101000000 {
		t.Fatalf("parseVersion = %d, %v", v, err)
	}
	for _, raw := range []string{"", "2026", "2026010100000x"} {
		if _, err := parseVersion(raw); err == nil {
			t.Errorf("expected error for %q", raw)
		}
	}
}

func TestCreateSQLMigrationWritesTemplate(t *testing.T) {
	dir := t.TempDir()
	path, err := CreateSQLMigration(dir, "Add Wallet Index")
	if err != nil {
		t.Fatalf("create migration: %v", err)
	}
	if !strings.HasSuffix(path, "_add_wallet_index.sql") {
		t.Fatalf("unexpected filename %s", path)
	}
	if err := ValidateDir(dir); err != nil {
		t.Fatalf("generated migration invalid: %v", err)
	}
	if _, err := CreateSQLMigration(dir, "add wallet index"); err == nil {
		t.Fatal("expected duplicate name to be rejected")
	}
	if _, err := CreateSQLMigration(dir, "!!!"); err == nil {
		t.Fatal("expected empty sanitized name to be rejected")
	}
}

func readAllMigrations(t *testing.T) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	var b strings.Builder
	for _, m := range matches {
		data, err := os.ReadFile(m)
		if err != nil {
			t.Fatalf("read %s: %v", m, err)
		}
		b.Write(data)
	}
	return b.String()
}
