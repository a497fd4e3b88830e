package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/openagency/openagency/internal/audit"
	"github.com/openagency/openagency/internal/identity"
	"github.com/openagency/openagency/internal/invitation"
	"github.com/openagency/openagency/internal/notify"
	"github.com/openagency/openagency/internal/provision"
	"github.com/openagency/openagency/internal/tenant"
	"github.com/openagency/openagency/internal/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// Mock repository for invitations
type mockInvRepo struct {
	mock.Mock
}

func (m *mockInvRepo) Create(ctx context.Context, inv *invitation.Invitation) error {
	args := m.Called(ctx, inv)
	return args.Error(0)
}
func (m *mockInvRepo) GetByID(ctx context.Context, id string) (*invitation.Invitation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*invitation.Invitation), args.Error(1)
}
func (m *mockInvRepo) GetByToken(ctx context.Context, tok string) (*invitation.Invitation, error) {
	args := m.Called(ctx, tok)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*invitation.Invitation), args.Error(1)
}
func (m *mockInvRepo) GetPendingByEmail(ctx context.Context, email string) (*invitation.Invitation, error) {
	return nil, invitation.ErrNotFound
}
func (m *mockInvRepo) ListByTenant(ctx context.Context, tenantID string) ([]*invitation.Invitation, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*invitation.Invitation), args.Error(1)
}
func (m *mockInvRepo) ListPending(ctx context.Context, now time.Time) ([]*invitation.Invitation, error) {
	return nil, nil
}
func (m *mockInvRepo) ReplaceToken(ctx context.Context, id, tok string, generation int, issuedAt, expiresAt time.Time) error {
	args := m.Called(ctx, id, tok, generation, issuedAt, expiresAt)
	return args.Error(0)
}
func (m *mockInvRepo) Cancel(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// Mock repository for users
type mockUserRepo struct {
	mock.Mock
}

func (m *mockUserRepo) GetByID(ctx context.Context, id string) (*identity.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.User), args.Error(1)
}
func (m *mockUserRepo) GetByEmail(ctx context.Context, email string) (*identity.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.User), args.Error(1)
}

type mockActivator struct {
	mock.Mock
}

func (m *mockActivator) Activate(ctx context.Context, inv *invitation.Invitation, user *identity.User, passwordHash string) error {
	args := m.Called(ctx, inv, user, passwordHash)
	return args.Error(0)
}

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) Send(ctx context.Context, msg notify.Message) (notify.Result, error) {
	args := m.Called(ctx, msg)
	return args.Get(0).(notify.Result), args.Error(1)
}

// Mock repository for tenants
type mockTenantRepo struct {
	mock.Mock
}

func (m *mockTenantRepo) GetByID(ctx context.Context, id string) (*tenant.Tenant, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*tenant.Tenant), args.Error(1)
}
func (m *mockTenantRepo) GetBySlug(ctx context.Context, slug string) (*tenant.Tenant, error) {
	args := m.Called(ctx, slug)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*tenant.Tenant), args.Error(1)
}
func (m *mockTenantRepo) List(ctx context.Context, limit, offset int) ([]*tenant.Tenant, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*tenant.Tenant), args.Error(1)
}
func (m *mockTenantRepo) SetManager(ctx context.Context, tenantID, userID string) error {
	return nil
}

type mockProvisioner struct {
	mock.Mock
}

func (m *mockProvisioner) Provision(ctx context.Context, d provision.Descriptor) (provision.ResourceSet, error) {
	args := m.Called(ctx, d)
	return args.Get(0).(provision.ResourceSet), args.Error(1)
}

type mockSagaStore struct {
	mock.Mock
}

func (m *mockSagaStore) CreateTenantWithInvitation(ctx context.Context, t *tenant.Tenant, inv *invitation.Invitation) error {
	args := m.Called(ctx, t, inv)
	return args.Error(0)
}

type stubAudit struct{}

func (stubAudit) Log(ctx context.Context, event audit.Event) {}

type stubPinger struct{}

func (stubPinger) Ping(ctx context.Context) error { return nil }

const (
	testSecret = "test-operator-secret"
	testIssuer = "openagency-test"
)

var testPolicy = token.Policy{
	AdminWindow:  48 * time.Hour,
	MemberWindow: 7 * 24 * time.Hour,
}

type testEnv struct {
	router      http.Handler
	invRepo     *mockInvRepo
	userRepo    *mockUserRepo
	activator   *mockActivator
	gateway     *mockGateway
	tenantRepo  *mockTenantRepo
	provisioner *mockProvisioner
	sagaStore   *mockSagaStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		invRepo:     new(mockInvRepo),
		userRepo:    new(mockUserRepo),
		activator:   new(mockActivator),
		gateway:     new(mockGateway),
		tenantRepo:  new(mockTenantRepo),
		provisioner: new(mockProvisioner),
		sagaStore:   new(mockSagaStore),
	}

	gen := token.NewGenerator()
	hasher := identity.NewPasswordHasher(8*1024, 1, 1, 16, 32)
	setupBaseURL := "https://app.example.test/setup"

	svc := invitation.NewService(env.invRepo, env.userRepo, env.activator,
		gen, testPolicy, hasher, env.gateway, setupBaseURL, stubAudit{})
	saga := provision.NewSaga(env.provisioner, env.sagaStore, env.userRepo,
		gen, testPolicy, env.gateway, setupBaseURL, stubAudit{})

	h := NewHandler(saga, svc, env.tenantRepo, env.userRepo, stubAudit{},
		AuthConfig{JWTSecret: testSecret, Issuer: testIssuer}, stubPinger{})
	env.router = NewRouter(h, NewRateLimiter(1000, 1000))

	return env
}

func operatorToken(t *testing.T) string {
	t.Helper()

	claims := jwt.RegisteredClaims{
		Issuer:    testIssuer,
		Subject:   "op-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func doJSON(t *testing.T, router http.Handler, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func pendingInvitation(id string, expiresAt time.Time) *invitation.Invitation {
	tok := "tok-" + id
	tid := "tenant-1"
	now := time.Now()
	return &invitation.Invitation{
		ID:              id,
		Email:           id + "@example.com",
		FullName:        "Invitee",
		Role:            invitation.RoleMember,
		TenantID:        &tid,
		TenantName:      "Acme",
		InvitedBy:       "op-1",
		Token:           &tok,
		TokenGeneration: 1,
		IssuedAt:        now.Add(-time.Hour),
		ExpiresAt:       expiresAt,
		Status:          invitation.StatusInvited,
	}
}

// TestPurpose: Validates operator authentication on the management API.
// Scope: Unit Test
// Security: Bearer token enforcement on all /api/v1 routes
// Expected: Missing or malformed tokens yield 401; a signed token passes.
// Test Case ID: API-01
func TestAPI_OperatorAuthEnforcement(t *testing.T) {
	env := newTestEnv(t)

	rr := doJSON(t, env.router, http.MethodGet, "/api/v1/tenants/", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = doJSON(t, env.router, http.MethodGet, "/api/v1/tenants/", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	env.tenantRepo.On("List", mock.Anything, 50, 0).Return([]*tenant.Tenant{}, nil)
	rr = doJSON(t, env.router, http.MethodGet, "/api/v1/tenants/", operatorToken(t), nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

// TestPurpose: Validates setup completion error mapping on the public endpoint.
// Scope: Unit Test
// Expected: Unknown token 404, replayed token 409, expired token 410,
// weak password 400.
// Test Case ID: API-02
func TestAPI_CompleteSetup_ErrorMapping(t *testing.T) {
	env := newTestEnv(t)

	env.invRepo.On("GetByToken", mock.Anything, "unknown").
		Return(nil, invitation.ErrTokenNotFound)
	rr := doJSON(t, env.router, http.MethodPost, "/setup/complete", "",
		CompleteSetupRequest{Token: "unknown", Password: "str0ngpass"})
	assert.Equal(t, http.StatusNotFound, rr.Code)

	used := pendingInvitation("inv-used", time.Now().Add(24*time.Hour))
	used.Status = invitation.StatusActive
	used.Token = nil
	env.invRepo.On("GetByToken", mock.Anything, "used").Return(used, nil)
	rr = doJSON(t, env.router, http.MethodPost, "/setup/complete", "",
		CompleteSetupRequest{Token: "used", Password: "str0ngpass"})
	assert.Equal(t, http.StatusConflict, rr.Code)

	expired := pendingInvitation("inv-expired", time.Now().Add(-time.Minute))
	env.invRepo.On("GetByToken", mock.Anything, "expired").Return(expired, nil)
	rr = doJSON(t, env.router, http.MethodPost, "/setup/complete", "",
		CompleteSetupRequest{Token: "expired", Password: "str0ngpass"})
	assert.Equal(t, http.StatusGone, rr.Code)

	rr = doJSON(t, env.router, http.MethodPost, "/setup/complete", "",
		CompleteSetupRequest{Token: "whatever", Password: "short"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

// TestPurpose: Validates the happy path of setup completion.
// Scope: Unit Test
// Expected: 200 with the activated invitation view and the new user id;
// no token material in the response body.
// Test Case ID: API-03
func TestAPI_CompleteSetup_Success(t *testing.T) {
	env := newTestEnv(t)

	inv := pendingInvitation("inv-ok", time.Now().Add(24*time.Hour))
	env.invRepo.On("GetByToken", mock.Anything, *inv.Token).Return(inv, nil)
	env.activator.On("Activate", mock.Anything, inv, mock.Anything, mock.Anything).Return(nil)

	rr := doJSON(t, env.router, http.MethodPost, "/setup/complete", "",
		CompleteSetupRequest{Token: "tok-inv-ok", Password: "str0ngpass"})
	require.Equal(t, http.StatusOK, rr.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.NotEmpty(t, body["user_id"])
	assert.Equal(t, "tenant-1", body["tenant_id"])

	view := body["invitation"].(map[string]any)
	assert.Equal(t, invitation.StatusActive, view["status"])
	assert.NotContains(t, rr.Body.String(), "tok-inv-ok")
}

// TestPurpose: Validates invitation cancellation through the API.
// Scope: Unit Test
// Expected: 204 on success, 409 when the invitation is already resolved.
// Test Case ID: API-04
func TestAPI_CancelInvitation(t *testing.T) {
	env := newTestEnv(t)
	bearer := operatorToken(t)

	inv := pendingInvitation("inv-1", time.Now().Add(24*time.Hour))
	env.invRepo.On("GetByID", mock.Anything, "inv-1").Return(inv, nil)
	env.invRepo.On("Cancel", mock.Anything, "inv-1").Return(nil)

	rr := doJSON(t, env.router, http.MethodDelete, "/api/v1/invitations/inv-1", bearer, nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	resolved := pendingInvitation("inv-2", time.Now().Add(24*time.Hour))
	resolved.Status = invitation.StatusCancelled
	env.invRepo.On("GetByID", mock.Anything, "inv-2").Return(resolved, nil)

	rr = doJSON(t, env.router, http.MethodDelete, "/api/v1/invitations/inv-2", bearer, nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
}

// TestPurpose: Validates standalone invitation creation into an existing tenant.
// Scope: Unit Test
// Expected: 201 with an invited-status view; 409 when the email already
// belongs to a user.
// Test Case ID: API-05
func TestAPI_CreateInvitation(t *testing.T) {
	env := newTestEnv(t)
	bearer := operatorToken(t)

	ten := &tenant.Tenant{ID: "tenant-1", Name: "Acme", Status: tenant.StatusActive}
	env.tenantRepo.On("GetByID", mock.Anything, "tenant-1").Return(ten, nil)
	env.userRepo.On("GetByEmail", mock.Anything, "new@example.com").
		Return(nil, identity.ErrUserNotFound)
	env.invRepo.On("Create", mock.Anything, mock.Anything).Return(nil)
	env.gateway.On("Send", mock.Anything, mock.Anything).Return(notify.Result{Success: true}, nil)

	rr := doJSON(t, env.router, http.MethodPost, "/api/v1/invitations/", bearer,
		CreateInvitationRequest{TenantID: "tenant-1", Email: "new@example.com", FullName: "New Person", Role: invitation.RoleMember})
	require.Equal(t, http.StatusCreated, rr.Code)

	var view InvitationResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &view))
	assert.Equal(t, invitation.StatusInvited, view.Status)
	assert.Equal(t, "op-1", view.InvitedBy)

	env.userRepo.On("GetByEmail", mock.Anything, "taken@example.com").
		Return(&identity.User{ID: "u-1", Email: "taken@example.com"}, nil)

	rr = doJSON(t, env.router, http.MethodPost, "/api/v1/invitations/", bearer,
		CreateInvitationRequest{TenantID: "tenant-1", Email: "taken@example.com", FullName: "Taken", Role: invitation.RoleMember})
	assert.Equal(t, http.StatusConflict, rr.Code)
}

// TestPurpose: Validates tenant provisioning through the API, including the
// placeholder fallback when the upstream provisioner is down.
// Scope: Unit Test
// Expected: 201 with placeholder=true and the manager invitation attached.
// Test Case ID: API-06
func TestAPI_ProvisionTenant_PlaceholderFallback(t *testing.T) {
	env := newTestEnv(t)

	env.provisioner.On("Provision", mock.Anything, mock.Anything).
		Return(provision.ResourceSet{}, assert.AnError)
	env.userRepo.On("GetByEmail", mock.Anything, "manager@acme.example").
		Return(nil, identity.ErrUserNotFound)
	env.sagaStore.On("CreateTenantWithInvitation", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	env.gateway.On("Send", mock.Anything, mock.Anything).Return(notify.Result{Success: true}, nil)

	rr := doJSON(t, env.router, http.MethodPost, "/api/v1/tenants/provision", operatorToken(t),
		provision.Descriptor{Name: "Acme Agency", ManagerName: "Morgan", ManagerEmail: "manager@acme.example"})
	require.Equal(t, http.StatusCreated, rr.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, true, body["placeholder"])
	assert.Equal(t, true, body["notification_sent"])

	view := body["manager_invitation"].(map[string]any)
	assert.Equal(t, invitation.RoleAdministrator, view["role"])

	// Validation failures never reach the saga
	rr = doJSON(t, env.router, http.MethodPost, "/api/v1/tenants/provision", operatorToken(t),
		provision.Descriptor{Name: ""})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

// TestPurpose: Validates the operator lookup endpoints for tenants by slug
// and activated accounts by id.
// Scope: Unit Test
// Expected: 200 with the resource on a hit, 404 on a miss.
// Test Case ID: API-07
func TestAPI_LookupEndpoints(t *testing.T) {
	env := newTestEnv(t)
	bearer := operatorToken(t)

	env.tenantRepo.On("GetBySlug", mock.Anything, "acme-agency").
		Return(&tenant.Tenant{ID: "tenant-1", Name: "Acme Agency", Slug: "acme-agency", Status: "active"}, nil)
	env.tenantRepo.On("GetBySlug", mock.Anything, "nope").
		Return(nil, tenant.ErrTenantNotFound)

	rr := doJSON(t, env.router, http.MethodGet, "/api/v1/tenants/slug/acme-agency", bearer, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var got tenant.Tenant
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, "tenant-1", got.ID)

	rr = doJSON(t, env.router, http.MethodGet, "/api/v1/tenants/slug/nope", bearer, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	env.userRepo.On("GetByID", mock.Anything, "u-1").
		Return(&identity.User{ID: "u-1", TenantID: "tenant-1", Email: "morgan@acme.example", Role: invitation.RoleAdministrator}, nil)
	env.userRepo.On("GetByID", mock.Anything, "u-missing").
		Return(nil, identity.ErrUserNotFound)

	rr = doJSON(t, env.router, http.MethodGet, "/api/v1/users/u-1", bearer, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var user UserResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &user))
	assert.Equal(t, "morgan@acme.example", user.Email)

	rr = doJSON(t, env.router, http.MethodGet, "/api/v1/users/u-missing", bearer, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
