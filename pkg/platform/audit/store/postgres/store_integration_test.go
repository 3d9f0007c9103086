//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	audit "certify/pkg/platform/audit"
	auditpostgres "certify/pkg/platform/audit/store/postgres"
	"certify/pkg/testutil/containers"
)

type AuditStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *auditpostgres.Store
	ctx      context.Context
}

func TestAuditStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(AuditStoreSuite))
}

func (s *AuditStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = auditpostgres.New(s.postgres.DB)
	s.ctx = context.Background()
}

func (s *AuditStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(s.ctx, "audit_events"))
}

func (s *AuditStoreSuite) TestAppendAndListBySubject() {
	base := time.Now().UTC().Truncate(time.Microsecond)
	s.Require().NoError(s.store.Append(s.ctx, audit.Event{
		Timestamp: base,
		Action:    string(audit.EventCertificateIssued),
		ActorID:   "registrar",
		Subject:   "PSU-aB3dE9xY",
		RequestID: "req-1",
		ClientIP:  "203.0.113.7",
		Detail:    "C1",
	}))
	s.Require().NoError(s.store.Append(s.ctx, audit.Event{
		Timestamp: base.Add(time.Second),
		Action:    string(audit.EventCertificateVerified),
		Subject:   "PSU-aB3dE9xY",
	}))
	s.Require().NoError(s.store.Append(s.ctx, audit.Event{
		Timestamp: base,
		Action:    string(audit.EventAdminLoginFailed),
		Subject:   "admin",
	}))

	events, err := s.store.ListBySubject(s.ctx, "PSU-aB3dE9xY")
	s.Require().NoError(err)
	s.Require().Len(events, 2)

	issued := events[0]
	s.Equal(audit.CategoryCompliance, issued.Category)
	s.Equal(string(audit.EventCertificateIssued), issued.Action)
	s.Equal("registrar", issued.ActorID)
	s.Equal("req-1", issued.RequestID)
	s.Equal("203.0.113.7", issued.ClientIP)
	s.Equal("C1", issued.Detail)
	s.True(base.Equal(issued.Timestamp))

	s.Equal(audit.CategoryOperations, events[1].Category)
}

func (s *AuditStoreSuite) TestCategoryDerivedFromAction() {
	s.Require().NoError(s.store.Append(s.ctx, audit.Event{
		Category:  audit.CategoryOperations,
		Timestamp: time.Now(),
		Action:    string(audit.EventRateLimitExceeded),
		Subject:   "203.0.113.7",
	}))

	events, err := s.store.ListBySubject(s.ctx, "203.0.113.7")
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(audit.CategorySecurity, events[0].Category)
}

func (s *AuditStoreSuite) TestListRecentNewestFirst() {
	base := time.Now().UTC()
	for i := range 5 {
		s.Require().NoError(s.store.Append(s.ctx, audit.Event{
			Timestamp: base.Add(time.Duration(i) * time.Second),
			Action:    string(audit.EventCertificateVerified),
			Subject:   "PSU-aB3dE9xY",
			Detail:    string(rune('a' + i)),
		}))
	}

	events, err := s.store.ListRecent(s.ctx, 3)
	s.Require().NoError(err)
	s.Require().Len(events, 3)
	s.Equal("e", events[0].Detail)
	s.Equal("d", events[1].Detail)
	s.Equal("c", events[2].Detail)
}
