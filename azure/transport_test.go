package azure

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/arm"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

const testSubscriptionID = "11111111-2222-3333-4444-555555555555"

type fakeCredential struct{}

func (fakeCredential) GetToken(ctx context.Context, options policy.TokenRequestOptions) (azcore.AccessToken, error) {
	return azcore.AccessToken{Token: "fake-token", ExpiresOn: time.Now().Add(time.Hour)}, nil
}

type routeHandler func(req *http.Request) *http.Response

// fakeTransport answers SDK requests by method and lower-cased URL path.
type fakeTransport struct {
	mu       sync.Mutex
	routes   map[string]routeHandler
	requests []string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{routes: map[string]routeHandler{}}
}

func (transport *fakeTransport) Handle(method string, path string, handler routeHandler) {
	transport.routes[method+" "+strings.ToLower(path)] = handler
}

func (transport *fakeTransport) Do(req *http.Request) (*http.Response, error) {
	key := req.Method + " " + strings.ToLower(req.URL.Path)

	transport.mu.Lock()
	transport.requests = append(transport.requests, key)
	handler, ok := transport.routes[key]
	transport.mu.Unlock()

	if !ok {
		return jsonResponse(req, http.StatusNotFound, `{"error":{"code":"NotFound","message":"no fake route for `+key+`"}}`), nil
	}
	return handler(req), nil
}

func (transport *fakeTransport) Count(method string, path string) int {
	transport.mu.Lock()
	defer transport.mu.Unlock()

	key := method + " " + strings.ToLower(path)
	count := 0
	for _, request := range transport.requests {
		if request == key {
			count++
		}
	}
	return count
}

func jsonResponse(req *http.Request, status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
		Request:    req,
	}
}

func testClientOptions(transport *fakeTransport) *arm.ClientOptions {
	return &arm.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Transport: transport,
			Retry:     policy.RetryOptions{MaxRetries: -1},
		},
		DisableRPRegistration: true,
	}
}

func newTestResourceClient(t *testing.T, transport *fakeTransport) *ResourceClient {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	client, err := NewResourceClient(testSubscriptionID, fakeCredential{}, testClientOptions(transport), logger)
	require.NoError(t, err)
	return client
}
