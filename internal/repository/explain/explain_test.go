package explain_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"

	"github.com/rahmatrdn/go-query-reporter/entity"
	"github.com/rahmatrdn/go-query-reporter/internal/repository/explain"
)

// mockConn returns a DBConnection whose dialector is backed by sqlmock, with
// the provider tag chosen by the test.
func mockConn(t *testing.T, provider string) (*entity.DBConnection, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	dialector := mysql.New(mysql.Config{
		Conn:                      db,
		SkipInitializeWithVersion: true,
	})
	return &entity.DBConnection{Provider: provider, Dialector: dialector}, mock
}

func TestCapturePlanNonSQLProviderIsNoop(t *testing.T) {
	// A nil dialector would make any connection attempt explode, proving no
	// connection is opened for unsupported providers.
	repo := explain.NewPlanRepository(&entity.DBConnection{Provider: "mongodb"}, zap.NewNop())

	plan, err := repo.CapturePlan(context.Background(), "db.users.find()")
	require.NoError(t, err)
	assert.Nil(t, plan)
	assert.NoError(t, repo.Close())
}

func TestCapturePlanPostgres(t *testing.T) {
	conn, mock := mockConn(t, entity.ProviderPostgres)
	repo := explain.NewPlanRepository(conn, zap.NewNop())
	defer repo.Close()

	mock.ExpectQuery(`^EXPLAIN \(FORMAT JSON\) SELECT \* FROM users$`).
		WillReturnRows(sqlmock.NewRows([]string{"QUERY PLAN"}).
			AddRow(`[{"Plan":{"Node Type":"Seq Scan"}}]`))

	plan, err := repo.CapturePlan(context.Background(), "SELECT * FROM users")
	require.NoError(t, err)
	require.NotNil(t, plan)

	assert.Equal(t, entity.ProviderPostgres, plan.DatabaseProvider)
	assert.Equal(t, entity.PlanFormatJSON, plan.PlanFormat)
	assert.Contains(t, plan.Content, `"Node Type"`)
	// Structured output is re-indented.
	assert.Contains(t, plan.Content, "\n")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCapturePlanMySQL(t *testing.T) {
	conn, mock := mockConn(t, entity.ProviderMySQL)
	repo := explain.NewPlanRepository(conn, zap.NewNop())
	defer repo.Close()

	mock.ExpectQuery(`^EXPLAIN FORMAT=JSON SELECT 1$`).
		WillReturnRows(sqlmock.NewRows([]string{"EXPLAIN"}).
			AddRow(`{"query_block":{"select_id":1}}`))

	plan, err := repo.CapturePlan(context.Background(), "SELECT 1")
	require.NoError(t, err)
	require.NotNil(t, plan)
	assert.Equal(t, entity.PlanFormatJSON, plan.PlanFormat)
	assert.Contains(t, plan.Content, `"query_block"`)
}

func TestCapturePlanSQLiteText(t *testing.T) {
	conn, mock := mockConn(t, entity.ProviderSQLite)
	repo := explain.NewPlanRepository(conn, zap.NewNop())
	defer repo.Close()

	mock.ExpectQuery(`^EXPLAIN QUERY PLAN SELECT 1$`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "parent", "notused", "detail"}).
			AddRow(2, 0, 0, "SCAN users"))

	plan, err := repo.CapturePlan(context.Background(), "SELECT 1")
	require.NoError(t, err)
	require.NotNil(t, plan)
	assert.Equal(t, entity.PlanFormatText, plan.PlanFormat)
	assert.Contains(t, plan.Content, "SCAN users")
}

func TestCapturePlanSQLiteSideConnection(t *testing.T) {
	// Real in-memory database: exercises the lazy open, the EXPLAIN QUERY
	// PLAN path and connection reuse end to end.
	conn := &entity.DBConnection{
		Provider:  entity.ProviderSQLite,
		Dialector: sqlite.Open(":memory:"),
	}
	repo := explain.NewPlanRepository(conn, zap.NewNop())
	defer repo.Close()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			plan, err := repo.CapturePlan(context.Background(), "SELECT * FROM sqlite_master")
			assert.NoError(t, err)
			if assert.NotNil(t, plan) {
				assert.Equal(t, entity.ProviderSQLite, plan.DatabaseProvider)
				assert.Equal(t, entity.PlanFormatText, plan.PlanFormat)
				assert.Contains(t, plan.Content, "sqlite_master")
			}
		}()
	}
	wg.Wait()
}

func TestCapturePlanMSSQLTogglesShowplan(t *testing.T) {
	conn, mock := mockConn(t, entity.ProviderMSSQL)
	repo := explain.NewPlanRepository(conn, zap.NewNop())
	defer repo.Close()

	mock.ExpectExec(`^SET SHOWPLAN_XML ON$`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`^SELECT 1$`).
		WillReturnRows(sqlmock.NewRows([]string{"plan"}).AddRow("<ShowPlanXML/>"))
	mock.ExpectExec(`^SET SHOWPLAN_XML OFF$`).WillReturnResult(sqlmock.NewResult(0, 0))

	plan, err := repo.CapturePlan(context.Background(), "SELECT 1")
	require.NoError(t, err)
	require.NotNil(t, plan)
	assert.Equal(t, entity.PlanFormatXML, plan.PlanFormat)
	assert.Equal(t, "<ShowPlanXML/>", plan.Content)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCapturePlanMSSQLDisablesShowplanOnFailure(t *testing.T) {
	conn, mock := mockConn(t, entity.ProviderMSSQL)
	repo := explain.NewPlanRepository(conn, zap.NewNop())
	defer repo.Close()

	mock.ExpectExec(`^SET SHOWPLAN_XML ON$`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`^SELECT broken$`).WillReturnError(errors.New("syntax error"))
	mock.ExpectExec(`^SET SHOWPLAN_XML OFF$`).WillReturnResult(sqlmock.NewResult(0, 0))

	plan, err := repo.CapturePlan(context.Background(), "SELECT broken")
	require.Error(t, err)
	assert.Nil(t, plan)
	assert.NoError(t, mock.ExpectationsWereMet(), "OFF toggle must run on the failure path")
}

func TestCapturePlanQueryFailure(t *testing.T) {
	conn, mock := mockConn(t, entity.ProviderPostgres)
	repo := explain.NewPlanRepository(conn, zap.NewNop())
	defer repo.Close()

	mock.ExpectQuery(`^EXPLAIN`).WillReturnError(errors.New("permission denied"))

	plan, err := repo.CapturePlan(context.Background(), "SELECT 1")
	require.Error(t, err)
	assert.Nil(t, plan)
}

func TestCapturePlanReusesConnection(t *testing.T) {
	conn, mock := mockConn(t, entity.ProviderPostgres)
	repo := explain.NewPlanRepository(conn, zap.NewNop())
	defer repo.Close()

	for i := 0; i < 3; i++ {
		mock.ExpectQuery(`^EXPLAIN \(FORMAT JSON\)`).
			WillReturnRows(sqlmock.NewRows([]string{"QUERY PLAN"}).AddRow(`[]`))
	}

	for i := 0; i < 3; i++ {
		_, err := repo.CapturePlan(context.Background(), "SELECT 1")
		require.NoError(t, err)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCloseIsIdempotent(t *testing.T) {
	conn, mock := mockConn(t, entity.ProviderPostgres)
	repo := explain.NewPlanRepository(conn, zap.NewNop())

	mock.ExpectQuery(`^EXPLAIN`).
		WillReturnRows(sqlmock.NewRows([]string{"QUERY PLAN"}).AddRow(`[]`))
	mock.ExpectClose()

	_, err := repo.CapturePlan(context.Background(), "SELECT 1")
	require.NoError(t, err)

	assert.NoError(t, repo.Close())
	assert.NoError(t, repo.Close())
}
