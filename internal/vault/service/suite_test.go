package service

//go:generate mockgen -source=../store/store.go -destination=mocks/backend_mock.go -package=mocks Backend

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"receiptvault/internal/platform/logger"
	"receiptvault/internal/sentinel"
	"receiptvault/internal/vault/audit"
	"receiptvault/internal/vault/models"
	"receiptvault/internal/vault/service/mocks"
	dErrors "receiptvault/pkg/domain-errors"
	"receiptvault/pkg/testutil"
)

// ServiceSuite drives the vault against a mocked backend.
//
// Invariant: backend failures surface as internal errors and are never
// conflated with absence; nothing reaches the audit log for an operation
// that did not take effect.
// Reason not a feature test: the memory backend cannot fail, so these paths
// are only reachable with a mock.
type ServiceSuite struct {
	suite.Suite
	ctrl        *gomock.Controller
	mockBackend *mocks.MockBackend
	auditLog    *audit.Log
	clock       *fakeClock
	vault       *Vault
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.mockBackend = mocks.NewMockBackend(s.ctrl)
	s.clock = newFakeClock(testutil.FixedTime)
	s.auditLog = audit.NewLog(audit.WithClock(s.clock.Now), audit.WithLogger(logger.Discard()))

	var err error
	s.vault, err = New(s.mockBackend,
		WithClock(s.clock.Now),
		WithAuditLog(s.auditLog),
	)
	s.Require().NoError(err)
}

func (s *ServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) heldArtifact(id string) *models.Artifact {
	a := testutil.NewTestArtifact(1, models.RetentionStandard, testutil.FixedTime)
	a.ID = id
	a.PlaceLegalHold("CASE-7", testutil.FixedTime)
	return a
}

func (s *ServiceSuite) TestNewRequiresBackend() {
	_, err := New(nil)
	s.Require().Error(err)
}

func (s *ServiceSuite) TestStore() {
	ctx := context.Background()

	s.Run("rejects malformed input before touching the backend", func() {
		req := testutil.NewStoreRequest().WithContent("").Build()

		_, err := s.vault.Store(ctx, req)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.Zero(s.auditLog.Len())
	})

	s.Run("backend read failure is internal and unaudited", func() {
		s.mockBackend.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, errors.New("connection reset"))

		_, err := s.vault.Store(ctx, testutil.NewStoreRequest().Build())
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
		s.Zero(s.auditLog.Len())
	})

	s.Run("backend write failure is internal and unaudited", func() {
		s.mockBackend.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, sentinel.ErrNotFound)
		s.mockBackend.EXPECT().Put(gomock.Any(), gomock.Any()).Return(errors.New("disk full"))

		_, err := s.vault.Store(ctx, testutil.NewStoreRequest().Build())
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
		s.Zero(s.auditLog.Len())
	})

	s.Run("overwrite of a held id keeps the hold", func() {
		req := testutil.NewStoreRequest().WithID("artifact_held").WithRetention(models.RetentionTemporary).Build()
		held := s.heldArtifact("artifact_held")

		s.mockBackend.EXPECT().Get(gomock.Any(), "artifact_held").Return(held, nil)
		s.mockBackend.EXPECT().Put(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, a *models.Artifact) error {
				s.Equal(models.RetentionLegalHold, a.RetentionClass)
				s.Equal(held.Context[models.LegalHoldContextKey], a.Context[models.LegalHoldContextKey])
				s.Equal(req.Content, a.Content)
				return nil
			})

		id, err := s.vault.Store(ctx, req)
		s.Require().NoError(err)
		s.Equal("artifact_held", id)
	})
}

func (s *ServiceSuite) TestRetrieve() {
	ctx := context.Background()

	s.Run("absence is a silent miss", func() {
		s.mockBackend.EXPECT().Get(gomock.Any(), "artifact_missing").Return(nil, sentinel.ErrNotFound)

		got, err := s.vault.Retrieve(ctx, "artifact_missing", "auditor")
		s.Require().NoError(err)
		s.Nil(got)
		s.Zero(s.auditLog.Len())
	})

	s.Run("backend failure is not reported as a miss", func() {
		s.mockBackend.EXPECT().Get(gomock.Any(), "artifact_x").Return(nil, errors.New("i/o timeout"))

		got, err := s.vault.Retrieve(ctx, "artifact_x", "auditor")
		s.Require().Error(err)
		s.Nil(got)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})

	s.Run("failed bookkeeping write leaves no event", func() {
		a := testutil.NewTestArtifact(2, models.RetentionStandard, testutil.FixedTime)
		s.mockBackend.EXPECT().Get(gomock.Any(), a.ID).Return(a, nil)
		s.mockBackend.EXPECT().Put(gomock.Any(), gomock.Any()).Return(errors.New("read-only replica"))

		_, err := s.vault.Retrieve(ctx, a.ID, "auditor")
		s.Require().Error(err)
		s.Zero(s.auditLog.Len())
	})
}

func (s *ServiceSuite) TestDelete() {
	ctx := context.Background()

	s.Run("held artifact is never removed", func() {
		s.mockBackend.EXPECT().Get(gomock.Any(), "artifact_held").Return(s.heldArtifact("artifact_held"), nil)
		// no Delete expectation: any call fails the test

		deleted, err := s.vault.Delete(ctx, "artifact_held", "user request", "ops")
		s.Require().NoError(err)
		s.False(deleted)

		events := s.auditLog.Query(models.EventFilter{ArtifactID: "artifact_held"})
		s.Require().Len(events, 1)
		s.Equal(models.EventDeleteDenied, events[0].Type)
		s.Equal(models.ReasonLegalHoldActive, events[0].Metadata[models.MetaReason])
		s.Empty(events[0].UserID)
	})

	s.Run("backend delete failure is internal and unaudited", func() {
		a := testutil.NewTestArtifact(3, models.RetentionStandard, testutil.FixedTime)
		s.mockBackend.EXPECT().Get(gomock.Any(), a.ID).Return(a, nil)
		s.mockBackend.EXPECT().Delete(gomock.Any(), a.ID).Return(errors.New("permission denied"))

		deleted, err := s.vault.Delete(ctx, a.ID, "user request", "ops")
		s.Require().Error(err)
		s.False(deleted)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
		s.Empty(s.auditLog.Query(models.EventFilter{ArtifactID: a.ID}))
	})

	s.Run("cancelled context never reaches the backend", func() {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := s.vault.Delete(cancelled, "artifact_any", "user request", "ops")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeTimeout))
	})
}

func (s *ServiceSuite) TestExpireOldArtifacts() {
	ctx := context.Background()
	now := testutil.FixedTime
	old := now.Add(-100 * 24 * time.Hour)

	s.Run("list failure is internal", func() {
		s.mockBackend.EXPECT().List(gomock.Any()).Return(nil, errors.New("bucket unavailable"))

		count, err := s.vault.ExpireOldArtifacts(ctx, now)
		s.Require().Error(err)
		s.Zero(count)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})

	s.Run("hold applied after the scan wins", func() {
		candidate := testutil.NewTestArtifact(10, models.RetentionTemporary, old)
		current := candidate.Clone()
		current.PlaceLegalHold("CASE-9", now)

		s.mockBackend.EXPECT().List(gomock.Any()).Return([]*models.Artifact{candidate}, nil)
		// The re-read under the lock sees the hold that landed after List.
		s.mockBackend.EXPECT().Get(gomock.Any(), candidate.ID).Return(current, nil).Times(2)

		count, err := s.vault.ExpireOldArtifacts(ctx, now)
		s.Require().NoError(err)
		s.Zero(count)

		events := s.auditLog.Query(models.EventFilter{ArtifactID: candidate.ID})
		s.Require().Len(events, 1)
		s.Equal(models.EventDeleteDenied, events[0].Type)
	})

	s.Run("one failing artifact does not stop the sweep", func() {
		failing := testutil.NewTestArtifact(11, models.RetentionTemporary, old)
		ok := testutil.NewTestArtifact(12, models.RetentionTemporary, old)

		s.mockBackend.EXPECT().List(gomock.Any()).Return([]*models.Artifact{failing, ok}, nil)
		s.mockBackend.EXPECT().Get(gomock.Any(), failing.ID).Return(failing, nil).Times(2)
		s.mockBackend.EXPECT().Delete(gomock.Any(), failing.ID).Return(errors.New("throttled"))
		s.mockBackend.EXPECT().Get(gomock.Any(), ok.ID).Return(ok, nil).Times(2)
		s.mockBackend.EXPECT().Delete(gomock.Any(), ok.ID).Return(nil)

		count, err := s.vault.ExpireOldArtifacts(ctx, now)
		s.Require().Error(err)
		s.Equal(1, count)
		s.Contains(err.Error(), failing.ID)
	})
}

func (s *ServiceSuite) TestApplyLegalHold() {
	ctx := context.Background()

	s.Run("requires a case id", func() {
		_, err := s.vault.ApplyLegalHold(ctx, []string{"artifact_a"}, "")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("write failure stops and reports progress", func() {
		a := testutil.NewTestArtifact(20, models.RetentionStandard, testutil.FixedTime)
		b := testutil.NewTestArtifact(21, models.RetentionStandard, testutil.FixedTime)

		s.mockBackend.EXPECT().Get(gomock.Any(), a.ID).Return(a, nil)
		s.mockBackend.EXPECT().Put(gomock.Any(), gomock.Any()).Return(nil)
		s.mockBackend.EXPECT().Get(gomock.Any(), b.ID).Return(b, nil)
		s.mockBackend.EXPECT().Put(gomock.Any(), gomock.Any()).Return(errors.New("conditional check failed"))

		protected, err := s.vault.ApplyLegalHold(ctx, []string{a.ID, b.ID}, "CASE-1")
		s.Require().Error(err)
		s.Equal(1, protected)
		s.Len(s.auditLog.Query(models.EventFilter{Type: models.EventLegalHoldApplied}), 1)
	})
}

func (s *ServiceSuite) TestStatisticsListFailure() {
	s.mockBackend.EXPECT().List(gomock.Any()).Return(nil, errors.New("timeout"))

	_, err := s.vault.Statistics(context.Background())
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}
