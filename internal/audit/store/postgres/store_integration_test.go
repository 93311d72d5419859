//go:build integration

package postgres_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"catalog/internal/audit"
	"catalog/internal/audit/store/postgres"
	"catalog/internal/catalog"
	"catalog/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	ctx      context.Context
	postgres *containers.PostgresContainer
	store    *postgres.Store
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.ctx = context.Background()
	s.postgres = containers.NewPostgresContainer(s.T())
	s.postgres.Apply(s.ctx, s.T(), postgres.Schema())
	s.store = postgres.New(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	_, err := s.postgres.DB.ExecContext(s.ctx, "TRUNCATE audit_records")
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) newRecord(operationID, entityID string) audit.Record {
	return audit.NewRecord("alice", audit.ActionInfo, catalog.ResourceSample).
		Operation(operationID).
		Entity(entityID, "").
		Param("id", entityID).
		Build()
}

func (s *PostgresStoreSuite) TestInsertOneAndReadBack() {
	rec := s.newRecord("op-1", "S1")
	s.Require().NoError(s.store.InsertOne(s.ctx, rec))

	got, err := s.store.ByOperation(s.ctx, "op-1")
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal(rec.ID, got[0].ID)
	s.Equal("alice", got[0].UserID)
	s.Equal(catalog.ResourceSample, got[0].Resource)
	s.Require().Len(got[0].Params, 1)
	s.Equal("id", got[0].Params[0].Key)
}

func (s *PostgresStoreSuite) TestInsertOneIsIdempotent() {
	rec := s.newRecord("op-1", "S1")
	s.Require().NoError(s.store.InsertOne(s.ctx, rec))
	s.Require().NoError(s.store.InsertOne(s.ctx, rec))

	got, err := s.store.ByOperation(s.ctx, "op-1")
	s.Require().NoError(err)
	s.Len(got, 1)
}

func (s *PostgresStoreSuite) TestInsertManyBatch() {
	recs := []audit.Record{
		s.newRecord("op-1", "S1"),
		s.newRecord("op-1", "S2"),
		s.newRecord("op-1", "S3"),
	}
	s.Require().NoError(s.store.InsertMany(s.ctx, recs))

	got, err := s.store.ByOperation(s.ctx, "op-1")
	s.Require().NoError(err)
	s.Len(got, 3)
}

func (s *PostgresStoreSuite) TestRecentNewestFirst() {
	s.Require().NoError(s.store.InsertOne(s.ctx, s.newRecord("op-1", "S1")))
	s.Require().NoError(s.store.InsertOne(s.ctx, s.newRecord("op-2", "S2")))
	s.Require().NoError(s.store.InsertOne(s.ctx, s.newRecord("op-3", "S3")))

	got, err := s.store.Recent(s.ctx, 2)
	s.Require().NoError(err)
	s.Require().Len(got, 2)
	s.Equal("S3", got[0].ResourceID)
	s.Equal("S2", got[1].ResourceID)
}
