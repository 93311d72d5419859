package manager_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"catalog/internal/audit"
	auditmem "catalog/internal/audit/store/memory"
	"catalog/internal/catalog"
	"catalog/internal/catalog/entity"
	"catalog/internal/catalog/manager"
	"catalog/internal/catalog/resolver"
	catalogmem "catalog/internal/catalog/store/memory"
	"catalog/internal/eventbus"
	eventmem "catalog/internal/eventbus/store/memory"
	"catalog/pkg/domain"
	dErrors "catalog/pkg/domain-errors"
)

type ManagerSuite struct {
	suite.Suite
	ctx        context.Context
	entities   *catalogmem.Store[entity.Document]
	auditStore *auditmem.Store
	eventStore *eventmem.Store
	mgr        *manager.Manager[entity.Document]
}

func (s *ManagerSuite) SetupTest() {
	s.ctx = context.Background()
	s.entities = catalogmem.New[entity.Document](nil)
	s.auditStore = auditmem.New()
	s.eventStore = eventmem.New()

	trail := audit.NewTrail(s.auditStore)
	bus := eventbus.New(s.eventStore)
	res := resolver.New[entity.Document](catalog.ResourceSample, s.entities)
	s.mgr = manager.New[entity.Document](catalog.ResourceSample, res, trail, bus)
}

func TestManagerSuite(t *testing.T) {
	suite.Run(t, new(ManagerSuite))
}

func (s *ManagerSuite) addSample(id string) entity.Document {
	doc := entity.Document{ID: id, UUID: domain.NewUUID(domain.KindSample), Version: 1}
	s.entities.Add(7, doc)
	return doc
}

func (s *ManagerSuite) request(ids ...string) manager.GetRequest {
	return manager.GetRequest{
		OrganizationID: "org-1",
		StudyFqn:       "org-1:study-1",
		StudyUID:       7,
		IDs:            ids,
		User:           "alice",
		Token:          "tok",
	}
}

func (s *ManagerSuite) TestGetAuditsEveryHitUnderOneOperation() {
	s.addSample("S1")
	s.addSample("S2")

	res, err := s.mgr.Get(s.ctx, s.request("S1", "S2"))
	s.Require().NoError(err)
	s.Len(res.Found(), 2)

	records := s.auditStore.All()
	s.Require().Len(records, 2, "one INFO record per found entry")

	opID := records[0].OperationID
	s.NotEmpty(opID)
	for _, rec := range records {
		s.Equal(opID, rec.OperationID, "all records share the operation id")
		s.Equal(audit.ActionInfo, rec.Action)
		s.Equal(audit.ResultSuccess, rec.Status.Result)
		s.Equal("alice", rec.UserID)
	}
	s.Equal("S1", records[0].ResourceID)
	s.Equal("S2", records[1].ResourceID)
}

func (s *ManagerSuite) TestGetFailureWritesErrorRecordAndFinishesBatch() {
	s.addSample("S1")

	_, err := s.mgr.Get(s.ctx, s.request("S1", "S9"))
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	records := s.auditStore.All()
	s.Require().Len(records, 1, "the batch is flushed even on failure")
	s.Equal(audit.ResultError, records[0].Status.Result)
	s.Contains(records[0].Status.Error, "S9")
}

func (s *ManagerSuite) TestGetNotifiesInfoEvent() {
	s.addSample("S1")

	_, err := s.mgr.Get(s.ctx, s.request("S1"))
	s.Require().NoError(err)

	events := s.eventStore.All()
	s.Require().Len(events, 1)
	s.Equal("sample.info", events[0].EventID)
	s.Equal("alice", events[0].UserID)
	s.Equal("org-1:study-1", events[0].StudyFqn)
}

func (s *ManagerSuite) TestGetIgnoreMissingStillSucceeds() {
	s.addSample("S1")

	req := s.request("S1", "S9")
	req.IgnoreMissing = true

	res, err := s.mgr.Get(s.ctx, req)
	s.Require().NoError(err)
	s.Len(res.Found(), 1)
	s.Len(res.Missing(), 1)

	s.Require().Len(s.auditStore.All(), 1, "only found entries are audited")
}
