package resolver_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/suite"

	"catalog/internal/catalog"
	"catalog/internal/catalog/entity"
	"catalog/internal/catalog/resolver"
	"catalog/internal/catalog/store/memory"
	"catalog/pkg/domain"
	dErrors "catalog/pkg/domain-errors"
)

const study = int64(42)

type ResolverSuite struct {
	suite.Suite
	ctx      context.Context
	store    *memory.Store[entity.Document]
	resolver *resolver.Resolver[entity.Document]

	// acl maps entity uuid -> users allowed to see it. Entities absent
	// from the map are visible to everyone.
	acl map[string]map[string]bool
}

func (s *ResolverSuite) SetupTest() {
	s.ctx = context.Background()
	s.acl = make(map[string]map[string]bool)
	s.store = memory.New[entity.Document](func(user string, e entity.Document) bool {
		allowed, restricted := s.acl[e.UUID]
		if !restricted {
			return true
		}
		return allowed[user]
	})
	s.resolver = resolver.New[entity.Document](catalog.ResourceSample, s.store)
}

func TestResolverSuite(t *testing.T) {
	suite.Run(t, new(ResolverSuite))
}

func (s *ResolverSuite) addSample(id string, version int) entity.Document {
	doc := entity.Document{
		ID:      id,
		UUID:    domain.NewUUID(domain.KindSample),
		Version: version,
		Name:    "sample " + id,
	}
	s.store.Add(study, doc)
	return doc
}

func (s *ResolverSuite) restrict(doc entity.Document, users ...string) {
	allowed := make(map[string]bool, len(users))
	for _, u := range users {
		allowed[u] = true
	}
	s.acl[doc.UUID] = allowed
}

func (s *ResolverSuite) resolve(ids []string, ignoreMissing bool) (resolver.Resolution[entity.Document], error) {
	return s.resolver.Resolve(s.ctx, study, ids, catalog.Query{}, catalog.Projection{}, "alice", ignoreMissing)
}

func (s *ResolverSuite) TestOrderAndDeduplication() {
	s.addSample("S1", 1)
	s.addSample("S2", 1)
	s.addSample("S3", 1)

	res, err := s.resolve([]string{"S3", "S1", "S3", "S2", "S1"}, false)
	s.Require().NoError(err)

	found := res.Found()
	s.Require().Len(found, 3, "duplicates must collapse")
	s.Equal("S3", found[0].ID)
	s.Equal("S1", found[1].ID)
	s.Equal("S2", found[2].ID)
}

func (s *ResolverSuite) TestResolveByUUID() {
	a := s.addSample("S1", 1)
	b := s.addSample("S2", 1)

	res, err := s.resolve([]string{b.UUID, a.UUID}, false)
	s.Require().NoError(err)

	found := res.Found()
	s.Require().Len(found, 2)
	s.Equal(b.UUID, found[0].UUID)
	s.Equal(a.UUID, found[1].UUID)
}

func (s *ResolverSuite) TestEmptyInput() {
	_, err := s.resolve(nil, false)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func (s *ResolverSuite) TestMixedIdentifierClasses() {
	doc := s.addSample("S1", 1)

	_, err := s.resolve([]string{"S1", doc.UUID}, false)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	s.Contains(err.Error(), "uuids and ids in the same batch")
}

func (s *ResolverSuite) TestMultipleIDsWithVersions() {
	s.addSample("S1", 1)
	s.addSample("S2", 1)

	q := catalog.Query{AllVersions: true}
	_, err := s.resolver.Resolve(s.ctx, study, []string{"S1", "S2"}, q, catalog.Projection{}, "alice", false)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func (s *ResolverSuite) TestAllVersionsAscending() {
	uuid := domain.NewUUID(domain.KindSample)
	for _, v := range []int{3, 1, 2} {
		s.store.Add(study, entity.Document{ID: "S1", UUID: uuid, Version: v})
	}

	q := catalog.Query{AllVersions: true}
	res, err := s.resolver.Resolve(s.ctx, study, []string{"S1"}, q, catalog.Projection{}, "alice", false)
	s.Require().NoError(err)

	found := res.Found()
	s.Require().Len(found, 3)
	for i, want := range []int{1, 2, 3} {
		s.Equal(want, found[i].Version)
	}
}

func (s *ResolverSuite) TestLatestVersionWins() {
	uuid := domain.NewUUID(domain.KindSample)
	for _, v := range []int{1, 4, 2} {
		s.store.Add(study, entity.Document{ID: "S1", UUID: uuid, Version: v})
	}

	res, err := s.resolve([]string{"S1"}, false)
	s.Require().NoError(err)

	found := res.Found()
	s.Require().Len(found, 1)
	s.Equal(4, found[0].Version)
}

// Missing entries with every existing entry visible must produce a
// not-found error naming exactly the absent ids.
func (s *ResolverSuite) TestNotFoundNamesMissingIDs() {
	s.addSample("S1", 1)
	s.addSample("S2", 1)

	_, err := s.resolve([]string{"S1", "S3", "S2"}, false)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	s.Contains(err.Error(), "[S3]")
	s.NotContains(err.Error(), "S1")
}

// When hidden entries explain the shortfall, the error is authorization
// and deliberately names no entity.
func (s *ResolverSuite) TestAuthorizationErrorIsAnonymized() {
	s.addSample("S1", 1)
	hidden := s.addSample("S2", 1)
	s.restrict(hidden, "bob")

	_, err := s.resolve([]string{"S1", "S2"}, false)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	s.Contains(err.Error(), `user "alice"`)
	s.NotContains(err.Error(), "S2")
}

// A mix of truly absent and merely hidden entries still resolves to the
// authorization error: existence must not leak through the error class.
func (s *ResolverSuite) TestHiddenPlusAbsentIsAuthorization() {
	hidden := s.addSample("S1", 1)
	s.restrict(hidden, "bob")

	_, err := s.resolve([]string{"S1", "S9"}, false)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func (s *ResolverSuite) TestIgnoreMissingReturnsMarkers() {
	s.addSample("S1", 1)
	hidden := s.addSample("S2", 1)
	s.restrict(hidden, "bob")

	res, err := s.resolve([]string{"S1", "S2", "S9"}, true)
	s.Require().NoError(err)

	s.Require().Len(res.Matches, 3)
	s.Len(res.Found(), 1)

	missing := res.Missing()
	s.Require().Len(missing, 2)
	// Hidden and absent read identically.
	s.Equal(fmt.Sprintf("sample %s not found or access not permitted", "S2"), missing[0].Reason)
	s.Equal(fmt.Sprintf("sample %s not found or access not permitted", "S9"), missing[1].Reason)
}

func (s *ResolverSuite) TestStudyScope() {
	s.addSample("S1", 1)
	s.store.Add(study+1, entity.Document{ID: "S1", UUID: domain.NewUUID(domain.KindSample), Version: 1})

	res, err := s.resolve([]string{"S1"}, false)
	s.Require().NoError(err)
	s.Len(res.Found(), 1)
}

func (s *ResolverSuite) TestFirst() {
	s.addSample("S1", 1)
	s.addSample("S2", 1)

	res, err := s.resolve([]string{"S2", "S1"}, false)
	s.Require().NoError(err)

	first, ok := res.First()
	s.Require().True(ok)
	s.Equal("S2", first.ID)
}
