// Package explain retrieves database execution plans over a dedicated side
// connection, isolated from the host application's pool.
package explain

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	errwrap "github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/rahmatrdn/go-query-reporter/entity"
	"github.com/rahmatrdn/go-query-reporter/internal/helper"
)

type PlanRepository interface {
	// CapturePlan returns the execution plan for the query, or (nil, nil)
	// when the configured provider is not a SQL dialect.
	CapturePlan(ctx context.Context, query string) (*entity.ExecutionPlan, error)
	// Close tears down the cached side connection. Safe to call repeatedly;
	// the next CapturePlan reopens lazily.
	Close() error
}

type planRepo struct {
	conn *entity.DBConnection
	log  *zap.Logger

	mu    sync.RWMutex
	db    *gorm.DB
	group singleflight.Group
}

func NewPlanRepository(conn *entity.DBConnection, log *zap.Logger) PlanRepository {
	return &planRepo{conn: conn, log: log}
}

func (r *planRepo) CapturePlan(ctx context.Context, query string) (*entity.ExecutionPlan, error) {
	funcName := "PlanRepository.CapturePlan"

	if !r.conn.IsSQL() {
		return nil, nil
	}
	if err := helper.CheckDeadline(ctx); err != nil {
		return nil, errwrap.Wrap(err, funcName)
	}

	db, err := r.getConnection()
	if err != nil {
		return nil, errwrap.Wrap(err, funcName)
	}

	var content string
	format := entity.PlanFormatText

	switch r.conn.Provider {
	case entity.ProviderMySQL, entity.ProviderMariaDB:
		format = entity.PlanFormatJSON
		content, err = r.runExplain(ctx, db, "EXPLAIN FORMAT=JSON "+query)
	case entity.ProviderPostgres:
		format = entity.PlanFormatJSON
		content, err = r.runExplain(ctx, db, "EXPLAIN (FORMAT JSON) "+query)
	case entity.ProviderSQLite:
		content, err = r.runExplain(ctx, db, "EXPLAIN QUERY PLAN "+query)
	case entity.ProviderOracle:
		content, err = r.runOracle(ctx, db, query)
	case entity.ProviderMSSQL:
		format = entity.PlanFormatXML
		content, err = r.runShowplan(ctx, db, query)
	default:
		content, err = r.runExplain(ctx, db, "EXPLAIN "+query)
	}
	if err != nil {
		return nil, errwrap.Wrap(err, funcName)
	}

	if format == entity.PlanFormatJSON {
		content = prettyJSON(content)
	}

	return &entity.ExecutionPlan{
		DatabaseProvider: r.conn.Provider,
		PlanFormat:       format,
		Content:          content,
	}, nil
}

// getConnection lazily opens and caches the side connection. Concurrent first
// callers are collapsed into a single open; the handle is reused until Close.
func (r *planRepo) getConnection() (*gorm.DB, error) {
	r.mu.RLock()
	db := r.db
	r.mu.RUnlock()
	if db != nil {
		return db, nil
	}

	v, err, _ := r.group.Do("open", func() (any, error) {
		r.mu.RLock()
		cached := r.db
		r.mu.RUnlock()
		if cached != nil {
			return cached, nil
		}

		opened, err := gorm.Open(r.conn.Dialector, &gorm.Config{
			Logger: gormlogger.Discard,
		})
		if err != nil {
			return nil, err
		}

		// One pooled connection keeps session scoped commands (SHOWPLAN
		// toggles, PLAN_TABLE reads) on the connection that issued them.
		if sqlDB, err := opened.DB(); err == nil {
			sqlDB.SetMaxOpenConns(1)
			sqlDB.SetMaxIdleConns(1)
		}

		r.mu.Lock()
		r.db = opened
		r.mu.Unlock()

		r.log.Info("execution plan side connection established",
			zap.String("provider", r.conn.Provider))
		return opened, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*gorm.DB), nil
}

func (r *planRepo) Close() error {
	funcName := "PlanRepository.Close"

	r.mu.Lock()
	db := r.db
	r.db = nil
	r.mu.Unlock()

	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return errwrap.Wrap(err, funcName)
	}
	if err := sqlDB.Close(); err != nil {
		return errwrap.Wrap(err, funcName)
	}
	return nil
}

// runExplain executes one EXPLAIN style statement and flattens the result
// rows into a single string, one row per line.
func (r *planRepo) runExplain(ctx context.Context, db *gorm.DB, command string) (string, error) {
	rows, err := db.WithContext(ctx).Raw(command).Rows()
	if err != nil {
		return "", err
	}
	defer rows.Close()
	return collectRows(rows)
}

// runOracle populates PLAN_TABLE and reads it back through DBMS_XPLAN on the
// same session.
func (r *planRepo) runOracle(ctx context.Context, db *gorm.DB, query string) (string, error) {
	var content string
	err := db.WithContext(ctx).Connection(func(tx *gorm.DB) error {
		if err := tx.Exec("EXPLAIN PLAN FOR " + query).Error; err != nil {
			return err
		}
		rows, err := tx.Raw("SELECT PLAN_TABLE_OUTPUT FROM TABLE(DBMS_XPLAN.DISPLAY())").Rows()
		if err != nil {
			return err
		}
		defer rows.Close()
		content, err = collectRows(rows)
		return err
	})
	return content, err
}

// runShowplan wraps the original query in SHOWPLAN_XML session toggles. The
// OFF toggle runs on both success and failure paths; if it fails the session
// is discarded with the pooled connection, so it is logged and not escalated.
func (r *planRepo) runShowplan(ctx context.Context, db *gorm.DB, query string) (string, error) {
	var content string
	err := db.WithContext(ctx).Connection(func(tx *gorm.DB) error {
		if err := tx.Exec("SET SHOWPLAN_XML ON").Error; err != nil {
			return err
		}
		defer func() {
			if err := tx.Exec("SET SHOWPLAN_XML OFF").Error; err != nil {
				r.log.Warn("failed to disable SHOWPLAN_XML", zap.Error(err))
			}
		}()

		rows, err := tx.Raw(query).Rows()
		if err != nil {
			return err
		}
		defer rows.Close()
		content, err = collectRows(rows)
		return err
	})
	return content, err
}

func collectRows(rows *sql.Rows) (string, error) {
	cols, err := rows.Columns()
	if err != nil {
		return "", err
	}

	var lines []string
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return "", err
		}
		cells := make([]string, 0, len(values))
		for _, v := range values {
			cells = append(cells, stringifyCell(v))
		}
		lines = append(lines, strings.Join(cells, " | "))
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	return strings.Join(lines, "\n"), nil
}

func stringifyCell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(t)
	case string:
		return t
	default:
		return fmt.Sprintf("%v", t)
	}
}

// prettyJSON re-indents structured plan output; non-JSON content is passed
// through untouched.
func prettyJSON(content string) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(content), "", "  "); err != nil {
		return content
	}
	return buf.String()
}
