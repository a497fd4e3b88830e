package provision

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/openagency/openagency/internal/audit"
	"github.com/openagency/openagency/internal/identity"
	"github.com/openagency/openagency/internal/invitation"
	"github.com/openagency/openagency/internal/notify"
	"github.com/openagency/openagency/internal/tenant"
	"github.com/openagency/openagency/internal/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockProvisioner struct {
	mock.Mock
}

func (m *mockProvisioner) Provision(ctx context.Context, d Descriptor) (ResourceSet, error) {
	args := m.Called(ctx, d)
	return args.Get(0).(ResourceSet), args.Error(1)
}

type mockStore struct {
	mock.Mock
}

func (m *mockStore) CreateTenantWithInvitation(ctx context.Context, t *tenant.Tenant, inv *invitation.Invitation) error {
	args := m.Called(ctx, t, inv)
	return args.Error(0)
}

type mockUsers struct {
	mock.Mock
}

func (m *mockUsers) GetByID(ctx context.Context, id string) (*identity.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.User), args.Error(1)
}

func (m *mockUsers) GetByEmail(ctx context.Context, email string) (*identity.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.User), args.Error(1)
}

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) Send(ctx context.Context, msg notify.Message) (notify.Result, error) {
	args := m.Called(ctx, msg)
	return args.Get(0).(notify.Result), args.Error(1)
}

type stubAudit struct{}

func (stubAudit) Log(ctx context.Context, event audit.Event) {}

func newTestSaga(p *mockProvisioner, st *mockStore, u *mockUsers, g *mockGateway) *Saga {
	return NewSaga(
		p,
		st,
		u,
		token.NewGenerator(),
		token.Policy{AdminWindow: 48 * time.Hour, MemberWindow: 7 * 24 * time.Hour},
		g,
		"https://app.example.test/setup",
		stubAudit{},
	)
}

func testDescriptor() Descriptor {
	return Descriptor{
		Name:         "Acme Lettings",
		Plan:         tenant.PlanStandard,
		ManagerName:  "Morgan Manager",
		ManagerEmail: "morgan@acme.test",
	}
}

// TestPurpose: Validates the happy path — real resources, one tenant, one
// administrator invitation, welcome email sent.
// Scope: Unit Test
// Expected: Result carries real resources, a UUIDv7 tenant id, and a 48h
// administrator invitation linked to the tenant.
// Test Case ID: SAGA-01
func TestProvision_Saga_Success(t *testing.T) {
	p := new(mockProvisioner)
	st := new(mockStore)
	u := new(mockUsers)
	g := new(mockGateway)
	saga := newTestSaga(p, st, u, g)

	rs := ResourceSet{
		RepoRefs:   []string{"acme-lettings/site", "acme-lettings/crm"},
		DBRef:      "pg://cluster-7/acme_lettings",
		DeployRefs: []string{"https://acme-lettings.agencies.example"},
	}

	u.On("GetByEmail", mock.Anything, "morgan@acme.test").Return(nil, identity.ErrUserNotFound)
	p.On("Provision", mock.Anything, mock.MatchedBy(func(d Descriptor) bool {
		return d.Slug == "acme-lettings"
	})).Return(rs, nil)
	st.On("CreateTenantWithInvitation", mock.Anything, mock.MatchedBy(func(tn *tenant.Tenant) bool {
		uid, err := uuid.Parse(tn.ID)
		return err == nil && uid.Version() == 7 && !tn.Provisioning.Placeholder
	}), mock.MatchedBy(func(inv *invitation.Invitation) bool {
		return inv.Role == invitation.RoleAdministrator &&
			inv.ExpiresAt.Sub(inv.IssuedAt) == 48*time.Hour
	})).Return(nil)
	g.On("Send", mock.Anything, mock.MatchedBy(func(msg notify.Message) bool {
		return msg.Template == notify.TemplateInviteManager && msg.Recipient == "morgan@acme.test"
	})).Return(notify.Result{Success: true, MessageID: "m1"}, nil)

	res, err := saga.ProvisionTenant(context.Background(), testDescriptor())

	require.NoError(t, err)
	assert.False(t, res.Outcome.Placeholder)
	assert.Equal(t, rs, res.Outcome.Resources)
	assert.True(t, res.NotificationSent)
	require.NotNil(t, res.ManagerInvitation.TenantID)
	assert.Equal(t, res.Tenant.ID, *res.ManagerInvitation.TenantID)
	st.AssertExpectations(t)
}

// TestPurpose: Scenario E — unreachable resource provisioner.
// Scope: Unit Test
// Expected: The saga still returns a tenant and a manager invitation; the
// outcome carries flagged placeholder resources with the failure reason.
// Test Case ID: SAGA-02
func TestProvision_Saga_PlaceholderOnUpstreamFailure(t *testing.T) {
	p := new(mockProvisioner)
	st := new(mockStore)
	u := new(mockUsers)
	g := new(mockGateway)
	saga := newTestSaga(p, st, u, g)

	u.On("GetByEmail", mock.Anything, mock.Anything).Return(nil, identity.ErrUserNotFound)
	p.On("Provision", mock.Anything, mock.Anything).
		Return(ResourceSet{}, errors.New("dial tcp: connection refused"))
	st.On("CreateTenantWithInvitation", mock.Anything, mock.MatchedBy(func(tn *tenant.Tenant) bool {
		return tn.Provisioning.Placeholder && tn.Provisioning.Reason != ""
	}), mock.Anything).Return(nil)
	g.On("Send", mock.Anything, mock.Anything).Return(notify.Result{Success: true}, nil)

	res, err := saga.ProvisionTenant(context.Background(), testDescriptor())

	require.NoError(t, err)
	assert.True(t, res.Outcome.Placeholder)
	assert.Contains(t, res.Outcome.Reason, "connection refused")
	assert.Equal(t, PlaceholderResources("acme-lettings"), res.Outcome.Resources)
	assert.NotEmpty(t, res.Tenant.ID)
	assert.NotNil(t, res.ManagerInvitation)
}

// TestPurpose: Transactional abort — tenant and invitation write fails.
// Scope: Unit Test
// Expected: Hard error, no notification dispatched.
// Test Case ID: SAGA-03
func TestProvision_Saga_TxFailureAborts(t *testing.T) {
	p := new(mockProvisioner)
	st := new(mockStore)
	u := new(mockUsers)
	g := new(mockGateway)
	saga := newTestSaga(p, st, u, g)

	u.On("GetByEmail", mock.Anything, mock.Anything).Return(nil, identity.ErrUserNotFound)
	p.On("Provision", mock.Anything, mock.Anything).Return(ResourceSet{DBRef: "pg://x"}, nil)
	st.On("CreateTenantWithInvitation", mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("tx rollback: disk full"))

	_, err := saga.ProvisionTenant(context.Background(), testDescriptor())

	require.Error(t, err)
	g.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestProvision_Saga_DuplicateManagerEmail(t *testing.T) {
	p := new(mockProvisioner)
	st := new(mockStore)
	u := new(mockUsers)
	saga := newTestSaga(p, st, u, new(mockGateway))

	u.On("GetByEmail", mock.Anything, "morgan@acme.test").
		Return(&identity.User{ID: "u1"}, nil)

	_, err := saga.ProvisionTenant(context.Background(), testDescriptor())

	assert.ErrorIs(t, err, invitation.ErrEmailTaken)
	p.AssertNotCalled(t, "Provision", mock.Anything, mock.Anything)
}

// A concurrent duplicate slips past the precondition and is caught by the
// storage uniqueness constraint inside the transaction.
func TestProvision_Saga_ConflictFromStore(t *testing.T) {
	p := new(mockProvisioner)
	st := new(mockStore)
	u := new(mockUsers)
	g := new(mockGateway)
	saga := newTestSaga(p, st, u, g)

	u.On("GetByEmail", mock.Anything, mock.Anything).Return(nil, identity.ErrUserNotFound)
	p.On("Provision", mock.Anything, mock.Anything).Return(ResourceSet{}, nil)
	st.On("CreateTenantWithInvitation", mock.Anything, mock.Anything, mock.Anything).
		Return(invitation.ErrEmailTaken)

	_, err := saga.ProvisionTenant(context.Background(), testDescriptor())

	assert.ErrorIs(t, err, invitation.ErrEmailTaken)
	g.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestProvision_Saga_NotificationFailureNonFatal(t *testing.T) {
	p := new(mockProvisioner)
	st := new(mockStore)
	u := new(mockUsers)
	g := new(mockGateway)
	saga := newTestSaga(p, st, u, g)

	u.On("GetByEmail", mock.Anything, mock.Anything).Return(nil, identity.ErrUserNotFound)
	p.On("Provision", mock.Anything, mock.Anything).Return(ResourceSet{}, nil)
	st.On("CreateTenantWithInvitation", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	g.On("Send", mock.Anything, mock.Anything).Return(notify.Result{}, notify.ErrSendFailed)

	res, err := saga.ProvisionTenant(context.Background(), testDescriptor())

	require.NoError(t, err)
	assert.False(t, res.NotificationSent)
}

func TestProvision_Saga_ValidatesDescriptor(t *testing.T) {
	saga := newTestSaga(new(mockProvisioner), new(mockStore), new(mockUsers), new(mockGateway))

	cases := []struct {
		name string
		d    Descriptor
	}{
		{"missing name", Descriptor{ManagerName: "M", ManagerEmail: "m@x.test"}},
		{"missing manager email", Descriptor{Name: "Acme", ManagerName: "M"}},
		{"unknown plan", Descriptor{Name: "Acme", ManagerName: "M", ManagerEmail: "m@x.test", Plan: "diamond"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := saga.ProvisionTenant(context.Background(), tc.d)
			assert.ErrorIs(t, err, invitation.ErrValidation)
		})
	}
}

func TestProvision_Slugify(t *testing.T) {
	assert.Equal(t, "acme-lettings", Slugify("Acme Lettings"))
	assert.Equal(t, "foo-bar-42", Slugify("  Foo & Bar 42! "))
	assert.Equal(t, "", Slugify("!!!"))
}
