package repositories

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", t.Name(), time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err, "open sqlite")
	return db
}

func mustExec(t *testing.T, db *gorm.DB, q string, args ...interface{}) {
	t.Helper()
	require.NoError(t, db.Exec(q, args...).Error, "exec failed: query=%s", q)
}

func createPaymentTables(t *testing.T, db *gorm.DB) {
	mustExec(t, db, `CREATE TABLE payments (
		id TEXT PRIMARY KEY,
		reference TEXT NOT NULL UNIQUE,
		merchant_id TEXT NOT NULL,
		customer_id TEXT,
		channel TEXT NOT NULL,
		status TEXT NOT NULL,
		amount NUMERIC NOT NULL,
		currency TEXT NOT NULL,
		fee_rate NUMERIC NOT NULL,
		fee_amount NUMERIC NOT NULL,
		net_amount NUMERIC NOT NULL,
		refunded_amount NUMERIC NOT NULL DEFAULT 0,
		provider_transaction_id TEXT,
		redirect_url TEXT,
		idempotency_key TEXT,
		order_id TEXT,
		customer_email TEXT,
		customer_phone TEXT,
		customer_name TEXT,
		description TEXT,
		metadata TEXT,
		failure_reason TEXT,
		expires_at DATETIME NOT NULL,
		completed_at DATETIME,
		failed_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME,
		deleted_at DATETIME
	);`)
	mustExec(t, db, `CREATE TABLE transactions (
		id TEXT PRIMARY KEY,
		reference TEXT NOT NULL UNIQUE,
		payment_id TEXT NOT NULL,
		merchant_id TEXT NOT NULL,
		type TEXT NOT NULL,
		status TEXT NOT NULL,
		amount NUMERIC NOT NULL,
		currency TEXT NOT NULL,
		description TEXT,
		created_at DATETIME
	);`)
	mustExec(t, db, `CREATE TABLE customers (
		id TEXT PRIMARY KEY,
		merchant_id TEXT NOT NULL,
		environment TEXT NOT NULL,
		email TEXT,
		phone TEXT,
		name TEXT,
		total_spent NUMERIC NOT NULL DEFAULT 0,
		payment_count INTEGER NOT NULL DEFAULT 0,
		first_payment_at DATETIME,
		last_payment_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	);`)
}

func createMerchantTables(t *testing.T, db *gorm.DB) {
	mustExec(t, db, `CREATE TABLE merchants (
		id TEXT PRIMARY KEY,
		business_name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		environment TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at DATETIME,
		updated_at DATETIME,
		deleted_at DATETIME
	);`)
	mustExec(t, db, `CREATE TABLE api_keys (
		id TEXT PRIMARY KEY,
		merchant_id TEXT NOT NULL,
		key_id TEXT NOT NULL UNIQUE,
		secret_hash TEXT NOT NULL,
		is_active BOOLEAN NOT NULL,
		last_used_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME,
		deleted_at DATETIME
	);`)
}

func createWebhookTables(t *testing.T, db *gorm.DB) {
	mustExec(t, db, `CREATE TABLE webhook_configs (
		id TEXT PRIMARY KEY,
		merchant_id TEXT NOT NULL,
		url TEXT NOT NULL,
		events TEXT NOT NULL,
		secret TEXT NOT NULL,
		is_active BOOLEAN NOT NULL,
		created_at DATETIME,
		updated_at DATETIME,
		deleted_at DATETIME
	);`)
	mustExec(t, db, `CREATE TABLE webhook_logs (
		id TEXT PRIMARY KEY,
		webhook_config_id TEXT NOT NULL,
		payment_id TEXT NOT NULL,
		merchant_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		payload TEXT NOT NULL,
		status TEXT NOT NULL,
		http_status INTEGER,
		response_body TEXT,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_attempt_at DATETIME,
		delivered_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	);`)
}
