//go:build integration

package datastore

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcmysql "github.com/testcontainers/testcontainers-go/modules/mysql"

	"github.com/biotrack/biotrack/internal/record"
	"github.com/biotrack/biotrack/internal/remote"
)

func TestRemoteStoreMySQL(t *testing.T) {
	ctx := context.Background()

	container, err := tcmysql.Run(ctx, "mysql:8.0",
		tcmysql.WithDatabase("biotrack"),
		tcmysql.WithUsername("biotrack"),
		tcmysql.WithPassword("biotrack"),
	)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	dsn, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	parsed, err := mysqldriver.ParseDSN(dsn)
	require.NoError(t, err)
	host, port, err := net.SplitHostPort(parsed.Addr)
	require.NoError(t, err)
	portNum, err := strconv.Atoi(port)
	require.NoError(t, err)

	s, err := OpenRemote(RemoteConfig{
		Driver: DriverMySQL,
		MySQL: MySQLConfig{
			Host:     host,
			Port:     portNum,
			Username: parsed.User,
			Password: parsed.Passwd,
			Database: parsed.DBName,
		},
	}, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	created := time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC)
	id, err := s.Upload(ctx, sampleRecord("local-1", record.KindFauna, created))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	require.NoError(t, s.SetStatus(ctx, id, remote.StatusUpdate{Kind: record.KindFauna, Status: record.StatusRejected, ReviewerID: "sci"}))

	raws, err := s.FetchAll(ctx, record.KindFauna)
	require.NoError(t, err)
	require.Len(t, raws, 1)
	rec, err := record.Normalize(raws[0])
	require.NoError(t, err)
	assert.Equal(t, record.StatusRejected, rec.Status)
	assert.Equal(t, id, rec.ID)
}
