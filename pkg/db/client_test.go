package db

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/angelmondragon/blendpoint-backend/pkg/config"
	"github.com/angelmondragon/blendpoint-backend/pkg/logger"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type testModel struct {
	ID   int
	Name string
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:dbclient_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&testModel{}); err != nil {
		t.Fatalf("failed to migrate sqlite: %v", err)
	}
	return conn
}

func TestWithTx_CommitsAndRollbacks(t *testing.T) {
	conn := newTestDB(t)
	client := NewFromConn(conn)

	ctx := context.Background()
	if err := client.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&testModel{Name: "committed"}).Error
	}); err != nil {
		t.Fatalf("WithTx commit failed: %v", err)
	}

	var count int64
	if err := conn.Model(&testModel{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 record, got %d", count)
	}

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&testModel{Name: "rolled"}).Error; err != nil {
			return err
		}
		return errors.New("boom")
	})
	if err == nil {
		t.Fatal("expected WithTx to return an error")
	}
	if err := conn.Model(&testModel{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed after rollback: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected rollback to leave 1 record, got %d", count)
	}
}

func TestWithTx_RollsBackOnPanic(t *testing.T) {
	conn := newTestDB(t)
	client := NewFromConn(conn)

	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("expected panic to propagate")
			}
		}()
		_ = client.WithTx(context.Background(), func(tx *gorm.DB) error {
			if err := tx.Create(&testModel{Name: "panicky"}).Error; err != nil {
				return err
			}
			panic("boom")
		})
	}()

	var count int64
	if err := conn.Model(&testModel{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected panic to roll back, got %d rows", count)
	}
}

func TestPing(t *testing.T) {
	client := NewFromConn(newTestDB(t))
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected ping error: %v", err)
	}
}

func TestNewBuildsSQLiteSchema(t *testing.T) {
	dsn := "file:dbnew_" + uuid.NewString() + "?mode=memory&cache=shared"
	client, err := New(context.Background(), config.DBConfig{Driver: "sqlite", DSN: dsn}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer client.Close()

	for _, table := range []string{"carts", "loyalty_wallets", "outbox_events"} {
		if !client.DB().Migrator().HasTable(table) {
			t.Errorf("expected table %s", table)
		}
	}
}

func TestDialectorForRejectsUnknownDriver(t *testing.T) {
	if _, err := dialectorFor(config.DBConfig{Driver: "oracle", DSN: "x"}); err == nil {
		t.Fatal("expected unsupported driver error")
	}
	if _, err := dialectorFor(config.DBConfig{Driver: "sqlite", DSN: "file::memory:"}); err != nil {
		t.Fatalf("sqlite should be supported: %v", err)
	}
}

func TestWithTxRetriesLockConflicts(t *testing.T) {
	client := NewFromConn(newTestDB(t))

	calls := 0
	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		calls++
		if calls < 2 {
			return &pgconn.PgError{Code: pgSerializationFailure}
		}
		return tx.Create(&testModel{Name: "second try"}).Error
	})
	if err != nil {
		t.Fatalf("expected retry to succeed: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls)
	}

	calls = 0
	err = client.WithTx(context.Background(), func(*gorm.DB) error {
		calls++
		return &pgconn.PgError{Code: pgDeadlockDetected}
	})
	if !IsRetryable(err) || calls != txAttempts {
		t.Fatalf("expected exhausted retryable error after %d attempts, got %v after %d", txAttempts, err, calls)
	}

	calls = 0
	_ = client.WithTx(context.Background(), func(*gorm.DB) error {
		calls++
		return errors.New("validation")
	})
	if calls != 1 {
		t.Fatalf("plain errors must not be retried, got %d attempts", calls)
	}
}

func TestIsRetryable(t *testing.T) {
	if IsRetryable(nil) || IsRetryable(errors.New("boom")) {
		t.Fatal("unexpected retryable")
	}
	if !IsRetryable(&pgconn.PgError{Code: pgLockNotAvailable}) {
		t.Fatal("expected NOWAIT conflict to be retryable")
	}
	if !IsRetryable(errors.New("database is locked (5) (SQLITE_BUSY)")) {
		t.Fatal("expected sqlite busy to be retryable")
	}
	if IsRetryable(&pgconn.PgError{Code: pgUniqueViolation}) {
		t.Fatal("unique violations are not retryable")
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if IsUniqueViolation(nil, "") {
		t.Fatal("nil is not a violation")
	}
	if !IsUniqueViolation(errors.New("UNIQUE constraint failed: loyalty_wallets.customer_id"), "") {
		t.Fatal("expected sqlite message to match")
	}
	if !IsUniqueViolation(errors.New(`duplicate key value violates unique constraint "promotions_code_key"`), "promotions_code_key") {
		t.Fatal("expected postgres message to match")
	}
	if IsUniqueViolation(errors.New("connection refused"), "") {
		t.Fatal("unexpected match")
	}
}

func TestSlowQueriesAreLoggedWithoutBindValues(t *testing.T) {
	buf := &bytes.Buffer{}
	logg := logger.New(logger.Options{ServiceName: "test", Output: buf})

	if gormLoggerFor(config.DBConfig{SlowQuery: 0}, logg) != gormlogger.Discard {
		t.Fatal("expected discard logger when slow query logging is off")
	}

	conn := newTestDB(t)
	conn.Logger = gormLoggerFor(config.DBConfig{SlowQuery: time.Nanosecond}, logg)
	if err := conn.Create(&testModel{Name: "secret-name"}).Error; err != nil {
		t.Fatalf("insert: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, `"message":"db.query.flagged"`) || !strings.Contains(out, "INSERT INTO") {
		t.Fatalf("expected flagged insert, got %s", out)
	}
	if strings.Contains(out, "secret-name") {
		t.Fatalf("bind values leaked into log: %s", out)
	}
}
