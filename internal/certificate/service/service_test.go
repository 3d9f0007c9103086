package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"certify/internal/access"
	"certify/internal/artifact"
	"certify/internal/certificate/metrics"
	"certify/internal/certificate/models"
	"certify/internal/certificate/number"
	"certify/internal/certificate/service/mocks"
	"certify/internal/certificate/store"
	"certify/internal/course"
	id "certify/pkg/domain"
	dErrors "certify/pkg/domain-errors"
	audit "certify/pkg/platform/audit"
	"certify/pkg/platform/sentinel"
	"certify/pkg/testutil"
)

var registrar = access.Principal{
	AdminID:      "admin-1",
	Username:     "registrar",
	Capabilities: []access.Capability{access.CapabilityAdmin},
}

type ServiceSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	store     *mocks.MockStore
	catalog   *mocks.MockCatalog
	numbers   *mocks.MockNumberGenerator
	publisher *mocks.MockAuditPublisher
	metrics   *metrics.Metrics
	service   *Service
	ctx       context.Context
	now       time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.store = mocks.NewMockStore(s.ctrl)
	s.catalog = mocks.NewMockCatalog(s.ctrl)
	s.numbers = mocks.NewMockNumberGenerator(s.ctrl)
	s.publisher = mocks.NewMockAuditPublisher(s.ctrl)
	s.metrics = metrics.NewWith(prometheus.NewRegistry())
	s.service = New(s.store, s.catalog, s.numbers,
		artifact.New("https://verify.example.edu", "Puntland State University"),
		WithMetrics(s.metrics),
		WithAuditPublisher(s.publisher),
	)
	s.now = time.Date(2025, 6, 1, 9, 30, 0, 123456789, time.UTC)
	s.ctx = testutil.AtTime(context.Background(), s.now)
}

func (s *ServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func validRequest() models.IssueRequest {
	return models.IssueRequest{StudentName: "Amina Yusuf", StudentID: "S1234", CourseID: "C1"}
}

func (s *ServiceSuite) expectCourse() {
	s.catalog.EXPECT().FindByID(gomock.Any(), "C1").
		Return(&course.Course{ID: "C1", Title: "Database Systems"}, nil)
}

func (s *ServiceSuite) TestIssueSuccess() {
	s.expectCourse()
	s.numbers.EXPECT().Generate().Return(models.CertificateNumber("PSU-aB3dE9xY"), nil)
	s.store.EXPECT().Insert(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, r *models.CertificateRecord) error {
			s.False(r.ID.IsNil())
			return nil
		})
	s.publisher.EXPECT().Emit(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, e audit.Event) error {
			s.Equal(audit.EventCertificateIssued, audit.AuditEvent(e.Action))
			s.Equal("PSU-aB3dE9xY", e.Subject)
			s.Equal("admin-1", e.ActorID)
			return nil
		})

	record, err := s.service.Issue(s.ctx, registrar, validRequest())
	s.Require().NoError(err)
	s.Equal(models.CertificateNumber("PSU-aB3dE9xY"), record.CertificateNumber)
	s.Equal("Database Systems", record.CourseTitle)
	s.Equal(s.now.Truncate(time.Microsecond), record.IssuedAt)
	s.Equal(1.0, promtestutil.ToFloat64(s.metrics.Issued))
}

func (s *ServiceSuite) TestIssueTrimsInput() {
	s.catalog.EXPECT().FindByID(gomock.Any(), "C1").
		Return(&course.Course{ID: "C1", Title: "Database Systems"}, nil)
	s.numbers.EXPECT().Generate().Return(models.CertificateNumber("PSU-trimmed1"), nil)
	s.store.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(nil)
	s.publisher.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil)

	record, err := s.service.Issue(s.ctx, registrar, models.IssueRequest{
		StudentName: "  Amina Yusuf ", StudentID: " S1234", CourseID: "C1 ",
	})
	s.Require().NoError(err)
	s.Equal("Amina Yusuf", record.StudentName)
	s.Equal("S1234", record.StudentID)
}

func (s *ServiceSuite) TestIssueValidation() {
	cases := map[string]models.IssueRequest{
		"missing name":       {StudentID: "S1", CourseID: "C1"},
		"blank name":         {StudentName: "   ", StudentID: "S1", CourseID: "C1"},
		"missing student id": {StudentName: "Amina", CourseID: "C1"},
		"missing course":     {StudentName: "Amina", StudentID: "S1"},
	}
	for name, req := range cases {
		s.Run(name, func() {
			_, err := s.service.Issue(s.ctx, registrar, req)
			s.True(dErrors.HasCode(err, dErrors.CodeValidation), "got %v", err)
		})
	}
}

func (s *ServiceSuite) TestIssueUnknownCourse() {
	s.catalog.EXPECT().FindByID(gomock.Any(), "C9").Return(nil, sentinel.ErrNotFound)

	req := validRequest()
	req.CourseID = "C9"
	_, err := s.service.Issue(s.ctx, registrar, req)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidCourse))
	s.Equal(1.0, promtestutil.ToFloat64(s.metrics.IssueFailures.WithLabelValues("invalid_course")))
}

func (s *ServiceSuite) TestIssueCatalogFailure() {
	s.catalog.EXPECT().FindByID(gomock.Any(), "C1").Return(nil, errors.New("connection reset"))

	_, err := s.service.Issue(s.ctx, registrar, validRequest())
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *ServiceSuite) TestIssueRetriesOnCollision() {
	s.expectCourse()
	gomock.InOrder(
		s.numbers.EXPECT().Generate().Return(models.CertificateNumber("PSU-taken001"), nil),
		s.store.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(store.ErrDuplicateNumber),
		s.numbers.EXPECT().Generate().Return(models.CertificateNumber("PSU-taken002"), nil),
		s.store.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(store.ErrDuplicateNumber),
		s.numbers.EXPECT().Generate().Return(models.CertificateNumber("PSU-free0003"), nil),
		s.store.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(nil),
	)
	s.publisher.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil)

	record, err := s.service.Issue(s.ctx, registrar, validRequest())
	s.Require().NoError(err)
	s.Equal(models.CertificateNumber("PSU-free0003"), record.CertificateNumber)
	s.Equal(2.0, promtestutil.ToFloat64(s.metrics.NumberCollisions))
}

func (s *ServiceSuite) TestIssueExhaustsAfterMaxAttempts() {
	s.expectCourse()
	s.numbers.EXPECT().Generate().Return(models.CertificateNumber("PSU-taken001"), nil).Times(number.MaxAttempts)
	s.store.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(store.ErrDuplicateNumber).Times(number.MaxAttempts)

	_, err := s.service.Issue(s.ctx, registrar, validRequest())
	s.True(dErrors.HasCode(err, dErrors.CodeExhaustedKeyspace))
	s.Equal(float64(number.MaxAttempts), promtestutil.ToFloat64(s.metrics.NumberCollisions))
	s.Equal(0.0, promtestutil.ToFloat64(s.metrics.Issued))
}

func (s *ServiceSuite) TestIssueStoreFailureIsNotRetried() {
	s.expectCourse()
	s.numbers.EXPECT().Generate().Return(models.CertificateNumber("PSU-aB3dE9xY"), nil)
	s.store.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(sentinel.ErrUnavailable)

	_, err := s.service.Issue(s.ctx, registrar, validRequest())
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *ServiceSuite) TestIssueGeneratorFailure() {
	s.expectCourse()
	s.numbers.EXPECT().Generate().Return(models.CertificateNumber(""), errors.New("entropy exhausted"))

	_, err := s.service.Issue(s.ctx, registrar, validRequest())
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *ServiceSuite) TestIssueSucceedsWhenAuditFails() {
	s.expectCourse()
	s.numbers.EXPECT().Generate().Return(models.CertificateNumber("PSU-aB3dE9xY"), nil)
	s.store.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(nil)
	s.publisher.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(errors.New("buffer full"))

	_, err := s.service.Issue(s.ctx, registrar, validRequest())
	s.NoError(err)
}

func (s *ServiceSuite) TestAdminOperationsRejectAnonymous() {
	_, err := s.service.Issue(s.ctx, access.Anonymous, validRequest())
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

	_, err = s.service.GetForAdmin(s.ctx, access.Anonymous, id.NewCertificateID().String())
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

	_, err = s.service.List(s.ctx, access.Anonymous)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

	_, err = s.service.Count(s.ctx, access.Anonymous)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

	_, err = s.service.ListCourses(s.ctx, access.Anonymous)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

	_, _, err = s.service.Document(s.ctx, access.Anonymous, id.NewCertificateID().String())
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func (s *ServiceSuite) TestVerifyMalformedSkipsStore() {
	s.numbers.EXPECT().Valid("not-a-number").Return(false)

	_, err := s.service.VerifyByNumber(s.ctx, "not-a-number")
	s.Equal(errCertificateNotFound, err)
	s.Equal(1.0, promtestutil.ToFloat64(s.metrics.Verifications.WithLabelValues("not_found")))
}

func (s *ServiceSuite) TestVerifyStoreFailure() {
	s.numbers.EXPECT().Valid("PSU-aB3dE9xY").Return(true)
	s.store.EXPECT().FindByNumber(gomock.Any(), models.CertificateNumber("PSU-aB3dE9xY")).
		Return(nil, sentinel.ErrUnavailable)

	_, err := s.service.VerifyByNumber(s.ctx, "PSU-aB3dE9xY")
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	s.Equal(1.0, promtestutil.ToFloat64(s.metrics.Verifications.WithLabelValues("error")))
}

func (s *ServiceSuite) TestGetForAdminInvalidID() {
	_, err := s.service.GetForAdmin(s.ctx, registrar, "not-a-uuid")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestDocument() {
	internalID := id.NewCertificateID()
	s.store.EXPECT().FindByInternalID(gomock.Any(), internalID).Return(&models.CertificateRecord{
		ID:                internalID,
		CertificateNumber: "PSU-aB3dE9xY",
		StudentName:       "Amina Yusuf",
		CourseTitle:       "Database Systems",
		IssuedAt:          s.now,
	}, nil)
	s.publisher.EXPECT().Emit(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, e audit.Event) error {
			s.Equal(audit.EventCertificateDownloaded, audit.AuditEvent(e.Action))
			return nil
		})

	_, doc, err := s.service.Document(s.ctx, registrar, internalID.String())
	s.Require().NoError(err)
	s.Equal("certificate_PSU-aB3dE9xY.pdf", doc.Filename)
	s.Equal("https://verify.example.edu/verify/PSU-aB3dE9xY", doc.VerificationURL)
	s.Equal(1.0, promtestutil.ToFloat64(s.metrics.Downloads))
}

func (s *ServiceSuite) TestRefreshStoredGauge() {
	s.store.EXPECT().Count(gomock.Any()).Return(42, nil)

	s.Require().NoError(s.service.RefreshStoredGauge(s.ctx))
	s.Equal(42.0, promtestutil.ToFloat64(s.metrics.Stored))
}
