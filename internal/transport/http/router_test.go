package httptransport

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	adminhandler "credlock/internal/admin/handler"
	certificatehandler "credlock/internal/certificate/handler"
	certificateservice "credlock/internal/certificate/service"
	certificatememory "credlock/internal/certificate/store/memory"
	identityhandler "credlock/internal/identity/handler"
	identityservice "credlock/internal/identity/service"
	identitymemory "credlock/internal/identity/store/memory"
	issuerhandler "credlock/internal/issuer/handler"
	issuerservice "credlock/internal/issuer/service"
	issuermemory "credlock/internal/issuer/store/memory"
	"credlock/internal/ledger"
	"credlock/internal/ledger/mocks"
	"credlock/internal/verify"
	verifyhandler "credlock/internal/verify/handler"
	"credlock/pkg/platform/audit"
	auditmemory "credlock/pkg/platform/audit/store/memory"
	"credlock/pkg/platform/tx"
)

const testAdminToken = "test-admin-token"

type env struct {
	server *httptest.Server
	client *mocks.MockClient
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)
	logger := slog.New(slog.DiscardHandler)

	reconciler := ledger.NewReconciler(client)
	publisher := audit.NewPublisher(auditmemory.NewStore())
	runner := tx.NewInMemoryRunner()

	identityStore := identitymemory.NewStore()
	identitySvc := identityservice.New(identityStore, runner,
		identityservice.WithLogger(logger),
		identityservice.WithAuditPublisher(publisher),
	)

	requestStore := issuermemory.NewRequestStore()
	issuerStore := issuermemory.NewIssuerStore()
	issuerSvc := issuerservice.New(requestStore, issuerStore, runner, reconciler,
		issuerservice.WithLogger(logger),
		issuerservice.WithAuditPublisher(publisher),
	)

	certificateStore := certificatememory.NewStore()
	certificateSvc := certificateservice.New(certificateStore, runner, reconciler, issuerSvc,
		certificateservice.WithLogger(logger),
		certificateservice.WithAuditPublisher(publisher),
	)

	verifySvc := verify.New(reconciler, certificateStore, verify.WithLogger(logger))

	router := NewRouter(Deps{
		Logger:      logger,
		Identity:    identityhandler.New(identitySvc, logger),
		Certificate: certificatehandler.New(certificateSvc, logger),
		Issuer:      issuerhandler.New(issuerSvc, logger),
		Verify:      verifyhandler.New(verifySvc, logger),
		Admin: adminhandler.New(
			publisher, identitySvc, certificateSvc, issuerSvc, logger,
		),
		AdminToken: testAdminToken,
	})

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return &env{server: server, client: client}
}

func (e *env) post(t *testing.T, path string, body map[string]any, admin bool) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, e.server.URL+path, bytes.NewReader(raw))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if admin {
		req.Header.Set("X-Admin-Token", testAdminToken)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHealthz(t *testing.T) {
	e := newEnv(t)

	resp, err := http.Get(e.server.URL + "/healthz")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, "ok", body["status"])
}

func TestRegisterIdentity(t *testing.T) {
	e := newEnv(t)

	resp := e.post(t, "/identities", map[string]any{
		"identity_number": "123456789012",
		"display_name":    "Asha Rao",
		"wallet_address":  "0x" + strings.Repeat("a", 40),
	}, false)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	body := decode(t, resp)
	assert.NotEmpty(t, body["identity_key"])
	assert.NotContains(t, body, "identity_number")

	// Same number, different wallet: conflict.
	resp = e.post(t, "/identities", map[string]any{
		"identity_number": "123456789012",
		"display_name":    "Asha Rao",
		"wallet_address":  "0x" + strings.Repeat("b", 40),
	}, false)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	body = decode(t, resp)
	assert.Equal(t, "duplicate_identity", body["error"])
}

func TestRegisterIdentityRejectsMalformedNumber(t *testing.T) {
	e := newEnv(t)

	resp := e.post(t, "/identities", map[string]any{
		"identity_number": "12345",
		"display_name":    "Asha Rao",
		"wallet_address":  "0x" + strings.Repeat("a", 40),
	}, false)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestVerifyUnknownHash(t *testing.T) {
	e := newEnv(t)

	e.client.EXPECT().
		QueryState(gomock.Any(), ledger.OpGetCertificate, gomock.Any()).
		Return(json.RawMessage(`{"exists":false}`), nil)

	resp, err := http.Get(e.server.URL + "/verify/0x" + strings.Repeat("0", 64))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, "UNKNOWN", body["status"])
}

func TestIssueRequiresAuthorizedIssuer(t *testing.T) {
	e := newEnv(t)

	// The roster is empty and the ledger denies the role.
	e.client.EXPECT().
		HasRole(gomock.Any(), gomock.Any()).
		Return(false, nil)

	resp := e.post(t, "/certificates", map[string]any{
		"content_hash":            "0x" + strings.Repeat("1", 64),
		"subject_identity_number": "123456789012",
		"subject_wallet_address":  "0x" + strings.Repeat("a", 40),
		"issuer_wallet_address":   "0x" + strings.Repeat("b", 40),
		"title":                   "BSc Computer Science",
	}, false)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, "not_authorized_issuer", body["error"])
}

func TestAdminEndpointsRequireToken(t *testing.T) {
	e := newEnv(t)

	resp, err := http.Get(e.server.URL + "/admin/issuers")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	req, err := http.NewRequest(http.MethodGet, e.server.URL+"/admin/issuers", nil)
	require.NoError(t, err)
	req.Header.Set("X-Admin-Token", testAdminToken)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestAdminStats(t *testing.T) {
	e := newEnv(t)

	req, err := http.NewRequest(http.MethodGet, e.server.URL+"/admin/stats", nil)
	require.NoError(t, err)
	req.Header.Set("X-Admin-Token", testAdminToken)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	assert.Contains(t, body, "identities")
	assert.Contains(t, body, "certificates")
	assert.Contains(t, body, "recent_events")
}

func TestAdminListCertificatesIncludesRevoked(t *testing.T) {
	e := newEnv(t)

	// Authorized issuer, successful anchor.
	e.client.EXPECT().
		HasRole(gomock.Any(), gomock.Any()).
		Return(true, nil)
	e.client.EXPECT().
		SubmitTransaction(gomock.Any(), ledger.OpIssueCertificate, gomock.Any()).
		Return(ledger.TxRef("0xtx1"), nil)
	e.client.EXPECT().
		AwaitFinality(gomock.Any(), ledger.TxRef("0xtx1")).
		Return(ledger.BlockRef("0xblock1"), nil)

	hash := "0x" + strings.Repeat("2", 64)
	resp := e.post(t, "/certificates", map[string]any{
		"content_hash":            hash,
		"subject_identity_number": "123456789012",
		"subject_wallet_address":  "0x" + strings.Repeat("a", 40),
		"issuer_wallet_address":   "0x" + strings.Repeat("b", 40),
		"title":                   "BSc Computer Science",
	}, false)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	e.client.EXPECT().
		SubmitTransaction(gomock.Any(), ledger.OpRevokeAnchor, gomock.Any()).
		Return(ledger.TxRef("0xtx2"), nil)
	e.client.EXPECT().
		AwaitFinality(gomock.Any(), ledger.TxRef("0xtx2")).
		Return(ledger.BlockRef("0xblock2"), nil)

	resp = e.post(t, "/certificates/"+hash+"/revoke", map[string]any{}, false)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// The subject view hides the revoked record; the admin view keeps it.
	resp, err := http.Get(e.server.URL + "/certificates/wallet/0x" + strings.Repeat("a", 40))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	assert.EqualValues(t, 0, body["count"])

	req, err := http.NewRequest(http.MethodGet, e.server.URL+"/admin/certificates", nil)
	require.NoError(t, err)
	req.Header.Set("X-Admin-Token", testAdminToken)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body = decode(t, resp)
	assert.EqualValues(t, 1, body["count"])
}

func TestSubmitIssuerRequestFlow(t *testing.T) {
	e := newEnv(t)

	resp := e.post(t, "/issuers/requests", map[string]any{
		"name":           "Acme University",
		"wallet_address": "0x" + strings.Repeat("c", 40),
	}, false)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	body := decode(t, resp)
	requestID, ok := body["id"].(string)
	require.True(t, ok, "response body missing id: %v", body)
	require.NotEmpty(t, requestID)

	// Approving grants the role on the ledger first.
	e.client.EXPECT().
		SubmitTransaction(gomock.Any(), ledger.OpGrantIssuerRole, gomock.Any()).
		Return(ledger.TxRef("0xtx"), nil)
	e.client.EXPECT().
		AwaitFinality(gomock.Any(), ledger.TxRef("0xtx")).
		Return(ledger.BlockRef("0xblock"), nil)

	resp = e.post(t, "/admin/issuers/requests/"+requestID+"/approve", map[string]any{}, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body = decode(t, resp)
	assert.Equal(t, "ACTIVE", body["status"])
}
