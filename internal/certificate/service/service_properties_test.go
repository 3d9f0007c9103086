package service

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certify/internal/artifact"
	"certify/internal/certificate/models"
	"certify/internal/certificate/number"
	"certify/internal/certificate/store"
	"certify/internal/course"
	dErrors "certify/pkg/domain-errors"
	audit "certify/pkg/platform/audit"
	"certify/pkg/platform/audit/publisher"
	auditmemory "certify/pkg/platform/audit/store/memory"
	"certify/pkg/testutil"
)

var numberFormat = regexp.MustCompile(`^PSU-[A-Za-z0-9]{8}$`)

type harness struct {
	service *Service
	store   *store.InMemoryStore
	catalog *course.InMemoryCatalog
	audit   *auditmemory.InMemoryStore
}

func newHarness() *harness {
	h := &harness{
		store:   store.NewInMemoryStore(),
		catalog: course.NewInMemoryCatalog(course.Course{ID: "C1", Title: "Database Systems"}),
		audit:   auditmemory.NewInMemoryStore(),
	}
	h.service = New(h.store, h.catalog, number.New("PSU-", 8),
		artifact.New("https://verify.example.edu", "Puntland State University"),
		WithAuditPublisher(publisher.NewPublisher(h.audit)),
	)
	return h
}

func TestIssueThenVerifyExample(t *testing.T) {
	h := newHarness()
	ctx := testutil.AtTime(context.Background(), time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC))

	record, err := h.service.Issue(ctx, registrar, models.IssueRequest{
		StudentName: "Amina Yusuf", StudentID: "S1234", CourseID: "C1",
	})
	require.NoError(t, err)
	assert.Regexp(t, numberFormat, string(record.CertificateNumber))

	view, err := h.service.VerifyByNumber(context.Background(), string(record.CertificateNumber))
	require.NoError(t, err)
	assert.Equal(t, &models.PublicView{
		CertificateNumber: record.CertificateNumber,
		StudentName:       "Amina Yusuf",
		Course:            "Database Systems",
		IssueDate:         time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC),
		Valid:             true,
	}, view)

	admin, err := h.service.GetForAdmin(context.Background(), registrar, record.ID.String())
	require.NoError(t, err)
	assert.Equal(t, record, admin)

	assert.Equal(t, "https://verify.example.edu/verify/"+string(record.CertificateNumber),
		h.service.VerificationURL(record.CertificateNumber))

	verified, _ := h.audit.ListByAction(context.Background(), audit.EventCertificateVerified)
	assert.Len(t, verified, 1)
}

// Absent, malformed and near-miss numbers are indistinguishable to a verifier.
func TestVerifyNotFoundIsGeneric(t *testing.T) {
	h := newHarness()
	record, err := h.service.Issue(context.Background(), registrar, models.IssueRequest{
		StudentName: "Amina Yusuf", StudentID: "S1234", CourseID: "C1",
	})
	require.NoError(t, err)

	n := string(record.CertificateNumber)
	flipped := []byte(n)
	last := flipped[len(flipped)-1]
	if last >= 'a' && last <= 'z' {
		flipped[len(flipped)-1] = last - 32
	} else {
		flipped[len(flipped)-1] = 'z'
	}

	var messages []string
	for _, raw := range []string{
		"PSU-00000000",
		"PSU-",
		"",
		"psu" + n[3:],
		string(flipped),
		n + "x",
		"' OR 1=1 --",
	} {
		_, err := h.service.VerifyByNumber(context.Background(), raw)
		require.Error(t, err, raw)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound), raw)
		messages = append(messages, err.Error())
	}
	for _, m := range messages {
		assert.Equal(t, messages[0], m)
	}
}

func TestConcurrentIssuanceYieldsDistinctNumbers(t *testing.T) {
	h := newHarness()
	const n = 100

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		numbers = make(map[models.CertificateNumber]struct{}, n)
	)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			record, err := h.service.Issue(context.Background(), registrar, models.IssueRequest{
				StudentName: fmt.Sprintf("Student %d", i), StudentID: fmt.Sprintf("S%04d", i), CourseID: "C1",
			})
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			numbers[record.CertificateNumber] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, numbers, n)
	count, err := h.service.Count(context.Background(), registrar)
	require.NoError(t, err)
	assert.Equal(t, n, count)

	for num := range numbers {
		view, err := h.service.VerifyByNumber(context.Background(), string(num))
		require.NoError(t, err)
		assert.Equal(t, num, view.CertificateNumber)
	}
}

// Renaming or removing a course never changes what an issued certificate says.
func TestCourseTitleIsSnapshotAtIssuance(t *testing.T) {
	h := newHarness()
	record, err := h.service.Issue(context.Background(), registrar, models.IssueRequest{
		StudentName: "Amina Yusuf", StudentID: "S1234", CourseID: "C1",
	})
	require.NoError(t, err)

	h.catalog.Put(course.Course{ID: "C1", Title: "Advanced Database Systems"})
	view, err := h.service.VerifyByNumber(context.Background(), string(record.CertificateNumber))
	require.NoError(t, err)
	assert.Equal(t, "Database Systems", view.Course)

	h.catalog.Remove("C1")
	view, err = h.service.VerifyByNumber(context.Background(), string(record.CertificateNumber))
	require.NoError(t, err)
	assert.Equal(t, "Database Systems", view.Course)
}

func TestListNewestFirst(t *testing.T) {
	h := newHarness()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	var issued []models.CertificateNumber
	for i := range 3 {
		ctx := testutil.AtTime(context.Background(), base.Add(time.Duration(i)*time.Hour))
		record, err := h.service.Issue(ctx, registrar, models.IssueRequest{
			StudentName: fmt.Sprintf("Student %d", i), StudentID: fmt.Sprintf("S%d", i), CourseID: "C1",
		})
		require.NoError(t, err)
		issued = append(issued, record.CertificateNumber)
	}

	list, err := h.service.List(context.Background(), registrar)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, issued[2], list[0].CertificateNumber)
	assert.Equal(t, issued[1], list[1].CertificateNumber)
	assert.Equal(t, issued[0], list[2].CertificateNumber)
}

func TestVerificationQR(t *testing.T) {
	h := newHarness()
	record, err := h.service.Issue(context.Background(), registrar, models.IssueRequest{
		StudentName: "Amina Yusuf", StudentID: "S1234", CourseID: "C1",
	})
	require.NoError(t, err)

	png, err := h.service.VerificationQR(context.Background(), string(record.CertificateNumber), 0)
	require.NoError(t, err)
	assert.NotEmpty(t, png)

	_, err = h.service.VerificationQR(context.Background(), "PSU-00000000", 0)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}
