package health

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/sandeepkv93/otp-account-service/internal/database"
)

// DBChecker pings the database and confirms every service table exists, so a
// replica that was never migrated reports unready instead of failing signups.
type DBChecker struct {
	db *gorm.DB
}

func NewDBChecker(db *gorm.DB) Checker {
	if db == nil {
		return nil
	}
	return &DBChecker{db: db}
}

func (c *DBChecker) Check(ctx context.Context) CheckResult {
	res := CheckResult{Name: "db"}
	sqlDB, err := c.db.DB()
	if err != nil {
		res.Error = err.Error()
		return res
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		res.Error = err.Error()
		return res
	}
	migrator := c.db.WithContext(ctx).Migrator()
	for _, model := range database.Models() {
		if !migrator.HasTable(model) {
			res.Error = fmt.Sprintf("schema not migrated: missing table for %T", model)
			return res
		}
	}
	res.Healthy = true
	return res
}

// RedisChecker round-trips a short-lived key under the service namespace.
// Codes and rate-limit windows are writes, so a read-only replica is unready.
type RedisChecker struct {
	client redis.UniversalClient
	key    string
}

func NewRedisChecker(client redis.UniversalClient, prefix string) Checker {
	if client == nil {
		return nil
	}
	if prefix == "" {
		prefix = "health"
	}
	return &RedisChecker{client: client, key: prefix + ":probe"}
}

func (c *RedisChecker) Check(ctx context.Context) CheckResult {
	res := CheckResult{Name: "redis"}
	if err := c.client.Set(ctx, c.key, time.Now().UTC().Format(time.RFC3339Nano), 10*time.Second).Err(); err != nil {
		res.Error = err.Error()
		return res
	}
	if err := c.client.Get(ctx, c.key).Err(); err != nil {
		res.Error = err.Error()
		return res
	}
	res.Healthy = true
	return res
}
