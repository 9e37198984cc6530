package echoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/makena/hesabu/core"
	"github.com/makena/hesabu/core/activity"
	"github.com/makena/hesabu/core/payment"
	"github.com/makena/hesabu/core/progress"
	"github.com/makena/hesabu/core/user"
	inmemdb "github.com/makena/hesabu/storage/database/inmem"
)

type testMpesaClient struct {
	result payment.STKPushResult
	err    error
}

func (c *testMpesaClient) RequestSTKPush(context.Context, string, float64, string) (payment.STKPushResult, error) {
	return c.result, c.err
}

type testPaypalClient struct {
	order      payment.OrderResult
	orderErr   error
	capture    payment.CaptureResult
	captureErr error
}

func (c *testPaypalClient) CreateOrder(context.Context, float64, string, string) (payment.OrderResult, error) {
	return c.order, c.orderErr
}

func (c *testPaypalClient) CaptureOrder(context.Context, string) (payment.CaptureResult, error) {
	return c.capture, c.captureErr
}

type testMailSvc struct{}

func (testMailSvc) SendMessages(...*core.EmailMessage) {}

type testLogger struct{}

func (testLogger) Debug(string, ...interface{}) {}
func (testLogger) Info(string, ...interface{})  {}
func (testLogger) Warn(string, ...interface{})  {}
func (testLogger) Error(string, ...interface{}) {}
func (testLogger) Fatal(string, ...interface{}) {}

type testApp struct {
	server  Server
	conf    *core.Config
	usrRepo user.Repository
	usrSvc  *user.Service
	pmtSvc  *payment.Service
	mpesa   *testMpesaClient
	paypal  *testPaypalClient
}

func newTestConf() *core.Config {
	return &core.Config{
		TestMode:         true,
		AppName:          "Hesabu",
		SecretKey:        []byte("access-secret"),
		RefreshSecretKey: []byte("refresh-secret"),
		FrontendBaseURL:  "http://localhost:3000",
		Server: core.ServerConfig{
			JWTExpirationDelta:        10 * time.Minute,
			JWTRefreshExpirationDelta: 4 * time.Hour,
		},
	}
}

func initApp(t *testing.T) *testApp {
	t.Helper()

	conf := newTestConf()

	validate := validator.New()
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	db := inmemdb.NewDB()
	usrRepo := inmemdb.NewUserRepository(db)
	logger := testLogger{}
	audit := activity.NewService(inmemdb.NewActivityRepository(db), logger)
	usrSvc := user.NewService(usrRepo, testMailSvc{}, audit, validate, conf)
	progSvc := progress.NewService(inmemdb.NewProgressRepository(db))
	mpesaClient := new(testMpesaClient)
	paypalClient := new(testPaypalClient)
	pmtSvc := payment.NewService(
		inmemdb.NewPaymentRepository(db), usrSvc, progSvc, audit,
		mpesaClient, paypalClient, validate, logger,
	)

	server := NewServer(ServerDeps{
		Conf:       conf,
		Logger:     logger,
		UserSvc:    usrSvc,
		PaymentSvc: pmtSvc,
		AuditSvc:   audit,
		Validate:   validate,
		Translator: translator,
	})

	return &testApp{
		server:  server,
		conf:    conf,
		usrRepo: usrRepo,
		usrSvc:  usrSvc,
		pmtSvc:  pmtSvc,
		mpesa:   mpesaClient,
		paypal:  paypalClient,
	}
}

func (app *testApp) createUser(t *testing.T, email, pwd string, role user.Role, isActive bool) user.User {
	t.Helper()

	now := time.Now().UTC()
	usr := user.User{
		ID:            uuid.NewString(),
		Email:         email,
		FirstName:     "Jeri",
		LastName:      "Makena",
		Role:          role,
		IsActive:      isActive,
		PaymentStatus: user.PaymentPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("createUser() failed: %v", err)
		}
	}
	usr, err := app.usrRepo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	return usr
}

func (app *testApp) getToken(t *testing.T, usr user.User) string {
	t.Helper()

	token, err := GenerateAccessToken(usr, app.conf)
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func unmarchallObj(t *testing.T, data []byte, obj interface{}) {
	if err := json.Unmarshal(data, obj); err != nil {
		t.Fatalf("unmarchallObj() failed: %v (%s)", err, data)
	}
}
