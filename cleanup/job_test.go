package cleanup

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azure/tagged-resource-cleanup/config"
	"github.com/azure/tagged-resource-cleanup/notify"
	"github.com/azure/tagged-resource-cleanup/types"
)

type mockResourceClient struct {
	mu sync.Mutex

	ResourceGroups   []types.ResourceGroup
	Resources        map[string][]types.Resource
	DeleteStatus     map[string]int
	DeleteErr        map[string]error
	ListGroupsErr    error
	ListResourcesErr map[string]error
	ListGroupsCalled bool
	Deleted          []string
	DeleteAttempts   []string
	DeleteStarted    chan struct{}
	DeleteRelease    chan struct{}
}

func (m *mockResourceClient) ListResourceGroups(ctx context.Context) ([]types.ResourceGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ListGroupsCalled = true
	return m.ResourceGroups, m.ListGroupsErr
}

func (m *mockResourceClient) ListResources(ctx context.Context, resourceGroup types.ResourceGroup) ([]types.Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ListResourcesErr[resourceGroup.Name]; err != nil {
		return nil, err
	}
	return append([]types.Resource{}, m.Resources[resourceGroup.Name]...), nil
}

func (m *mockResourceClient) DeleteResource(ctx context.Context, resource types.Resource) (int, error) {
	if m.DeleteStarted != nil {
		m.DeleteStarted <- struct{}{}
		<-m.DeleteRelease
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.DeleteAttempts = append(m.DeleteAttempts, resource.Name)

	if err := m.DeleteErr[resource.Name]; err != nil {
		return m.DeleteStatus[resource.Name], err
	}
	status := http.StatusOK
	if configured, ok := m.DeleteStatus[resource.Name]; ok {
		status = configured
	}
	if status == http.StatusOK || status == http.StatusNoContent {
		m.Deleted = append(m.Deleted, resource.Name)
		remaining := []types.Resource{}
		for _, existing := range m.Resources[resource.ResourceGroup] {
			if existing.ID != resource.ID {
				remaining = append(remaining, existing)
			}
		}
		m.Resources[resource.ResourceGroup] = remaining
	}
	return status, nil
}

type mockNotifier struct {
	Messages []types.NotificationMessage
	Result   *types.NotificationResult
}

func (m *mockNotifier) Notify(ctx context.Context, message types.NotificationMessage) types.NotificationResult {
	m.Messages = append(m.Messages, message)
	if m.Result != nil {
		return *m.Result
	}
	return types.NotificationResult{Recipient: message.Recipient, Delivered: true}
}

func testConfig() *config.Config {
	return &config.Config{
		SubscriptionID:       "11111111-2222-3333-4444-555555555555",
		TagKey:               "Environment",
		TagValue:             "Test",
		EmailRecipient:       "ops@example.com",
		EmailSubjectTemplate: config.DefaultEmailSubjectTemplate,
		EmailBodyTemplate:    config.DefaultEmailBodyTemplate,
	}
}

func resource(resourceGroup string, name string, resourceType string, tags map[string]*string) types.Resource {
	return types.Resource{
		ID:            fmt.Sprintf("/subscriptions/x/resourceGroups/%s/providers/%s/%s", resourceGroup, resourceType, name),
		Name:          name,
		Type:          resourceType,
		ResourceGroup: resourceGroup,
		Tags:          tags,
	}
}

// scenarioClient holds rg-a with vm1 tagged Environment=Test and rg-b with disk1
// tagged Environment=Prod.
func scenarioClient() *mockResourceClient {
	return &mockResourceClient{
		ResourceGroups: []types.ResourceGroup{{Name: "rg-a"}, {Name: "rg-b"}},
		Resources: map[string][]types.Resource{
			"rg-a": {resource("rg-a", "vm1", "Microsoft.Compute/virtualMachines", map[string]*string{"Environment": to.Ptr("Test")})},
			"rg-b": {resource("rg-b", "disk1", "Microsoft.Compute/disks", map[string]*string{"Environment": to.Ptr("Prod")})},
		},
		DeleteStatus: map[string]int{},
		DeleteErr:    map[string]error{},
	}
}

func newTestJob(t *testing.T, client *mockResourceClient, notifier *mockNotifier) (*CleanupJob, *logrustest.Hook) {
	logger, hook := logrustest.NewNullLogger()
	logger.SetLevel(logrus.TraceLevel)

	cfg := testConfig()
	templates, err := notify.NewMessageTemplates(cfg.EmailSubjectTemplate, cfg.EmailBodyTemplate)
	require.NoError(t, err)

	job := NewCleanupJob(cfg, client, notifier, templates, logger)
	job.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }
	job.newID = func() string { return "run-1" }
	return job, hook
}

func errorEntries(hook *logrustest.Hook) []*logrus.Entry {
	entries := []*logrus.Entry{}
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.ErrorLevel {
			entries = append(entries, entry)
		}
	}
	return entries
}

func TestCleanupJob_Run_DeletesOnlyTaggedResources(t *testing.T) {
	client := scenarioClient()
	notifier := &mockNotifier{}
	job, _ := newTestJob(t, client, notifier)

	summary, err := job.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"vm1"}, client.Deleted)
	assert.Equal(t, []string{"vm1"}, client.DeleteAttempts)

	require.Len(t, notifier.Messages, 1)
	assert.Equal(t, "ops@example.com", notifier.Messages[0].Recipient)
	assert.Equal(t, "Resource Deleted: vm1", notifier.Messages[0].Subject)
	assert.Equal(t, "Resource vm1 of type Microsoft.Compute/virtualMachines was deleted.", notifier.Messages[0].Body)
	for _, message := range notifier.Messages {
		assert.NotContains(t, message.Subject+message.Body, "disk1")
	}

	assert.Equal(t, "run-1", summary.RunID)
	assert.Equal(t, 2, summary.ResourceGroups)
	assert.Equal(t, 2, summary.Scanned)
	assert.Equal(t, 1, summary.Matched)
	assert.Equal(t, 1, summary.Deleted)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, 1, summary.Notified)
}

func TestCleanupJob_Run_HttpFailureLogsAndContinues(t *testing.T) {
	client := scenarioClient()
	client.DeleteStatus["vm1"] = http.StatusInternalServerError
	client.Resources["rg-b"] = append(client.Resources["rg-b"],
		resource("rg-b", "ip1", "Microsoft.Network/publicIPAddresses", map[string]*string{"Environment": to.Ptr("Test")}))
	notifier := &mockNotifier{}
	job, hook := newTestJob(t, client, notifier)

	summary, err := job.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"vm1", "ip1"}, client.DeleteAttempts)
	assert.Equal(t, []string{"ip1"}, client.Deleted)

	require.Len(t, notifier.Messages, 1)
	assert.Contains(t, notifier.Messages[0].Subject, "ip1")

	errors := errorEntries(hook)
	require.Len(t, errors, 1)
	assert.Contains(t, errors[0].Message, "vm1")
	assert.Contains(t, errors[0].Message, "500")
	assert.Equal(t, http.StatusInternalServerError, errors[0].Data["status"])

	assert.Equal(t, 1, summary.Deleted)
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Outcomes, 2)
	assert.Equal(t, types.DeletionStatusFailedHttp, summary.Outcomes[0].Status)
	assert.Equal(t, http.StatusInternalServerError, summary.Outcomes[0].StatusCode)
}

func TestCleanupJob_Run_ResponseErrorIsHttpFailure(t *testing.T) {
	client := scenarioClient()
	client.DeleteErr["vm1"] = newResponseError(t, http.StatusInternalServerError, "InternalServerError", "boom")
	notifier := &mockNotifier{}
	job, hook := newTestJob(t, client, notifier)

	summary, err := job.Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, notifier.Messages)
	require.Len(t, summary.Outcomes, 1)
	assert.Equal(t, types.DeletionStatusFailedHttp, summary.Outcomes[0].Status)
	assert.Equal(t, http.StatusInternalServerError, summary.Outcomes[0].StatusCode)

	errors := errorEntries(hook)
	require.NotEmpty(t, errors)
	assert.Contains(t, errors[0].Message, "vm1")
	assert.Contains(t, errors[0].Message, "500")
}

func TestCleanupJob_Run_ResponseErrorDetailIsLogged(t *testing.T) {
	client := scenarioClient()
	client.DeleteErr["vm1"] = newResponseError(t, http.StatusConflict, "Conflict", "disk is attached")
	notifier := &mockNotifier{}
	job, hook := newTestJob(t, client, notifier)

	_, err := job.Run(context.Background())
	require.NoError(t, err)

	errors := errorEntries(hook)
	require.Len(t, errors, 2)
	assert.Contains(t, errors[0].Message, "Status: 409")
	assert.Contains(t, errors[1].Message, "disk is attached")
}

func TestCleanupJob_Run_FailedOperationAfterAcceptIsException(t *testing.T) {
	client := scenarioClient()
	client.DeleteStatus["vm1"] = http.StatusOK
	client.DeleteErr["vm1"] = newResponseError(t, http.StatusOK, "Conflict", "in use")
	notifier := &mockNotifier{}
	job, hook := newTestJob(t, client, notifier)

	summary, err := job.Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, client.Deleted)
	assert.Empty(t, notifier.Messages)
	require.Len(t, summary.Outcomes, 1)
	assert.Equal(t, types.DeletionStatusFailedException, summary.Outcomes[0].Status)
	assert.Equal(t, 0, summary.Outcomes[0].StatusCode)

	errors := errorEntries(hook)
	require.NotEmpty(t, errors)
	assert.Contains(t, errors[0].Message, "Error deleting Resource 'vm1'")
	assert.Contains(t, errors[0].Message, "Conflict")
	for _, entry := range errors {
		assert.NotContains(t, entry.Message, "Status: 200")
	}
}

func TestCleanupJob_Run_ExceptionLogsAndContinues(t *testing.T) {
	client := scenarioClient()
	client.Resources["rg-a"] = append(client.Resources["rg-a"],
		resource("rg-a", "vm2", "Microsoft.Compute/virtualMachines", map[string]*string{"Environment": to.Ptr("Test")}))
	client.DeleteErr["vm1"] = fmt.Errorf("polling delete: %w", context.DeadlineExceeded)
	notifier := &mockNotifier{}
	job, hook := newTestJob(t, client, notifier)

	summary, err := job.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"vm1", "vm2"}, client.DeleteAttempts)
	require.Len(t, notifier.Messages, 1)
	assert.Contains(t, notifier.Messages[0].Subject, "vm2")

	errors := errorEntries(hook)
	require.Len(t, errors, 2)
	assert.Contains(t, errors[0].Message, "Error deleting Resource 'vm1'")
	assert.Contains(t, errors[0].Message, "polling delete")
	assert.Contains(t, errors[1].Message, "context deadline exceeded")

	assert.Equal(t, types.DeletionStatusFailedException, summary.Outcomes[0].Status)
}

func TestCleanupJob_Run_NotificationFailureDoesNotAffectDeletion(t *testing.T) {
	client := scenarioClient()
	notifier := &mockNotifier{Result: &types.NotificationResult{Recipient: "ops@example.com", Err: fmt.Errorf("smtp auth failed")}}
	job, hook := newTestJob(t, client, notifier)

	summary, err := job.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"vm1"}, client.Deleted)
	assert.Len(t, notifier.Messages, 1)
	assert.Equal(t, 1, summary.Deleted)
	assert.Equal(t, 0, summary.Notified)
	assert.Equal(t, 1, summary.NotificationFailures)
	assert.True(t, summary.Outcomes[0].Succeeded())

	warned := false
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.WarnLevel && strings.Contains(entry.Message, "vm1") {
			warned = true
		}
	}
	assert.True(t, warned)
}

func TestCleanupJob_Run_IsIdempotentAcrossRuns(t *testing.T) {
	client := scenarioClient()
	notifier := &mockNotifier{}
	job, _ := newTestJob(t, client, notifier)

	first, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, first.Deleted)

	second, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, second.Matched)
	assert.Equal(t, 0, second.Deleted)
	assert.Len(t, notifier.Messages, 1)
}

func TestCleanupJob_Run_ListResourceGroupsErrorAbortsRun(t *testing.T) {
	client := scenarioClient()
	client.ListGroupsErr = fmt.Errorf("authorization failed")
	notifier := &mockNotifier{}
	job, _ := newTestJob(t, client, notifier)

	_, err := job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "authorization failed")
	assert.Empty(t, client.DeleteAttempts)
	assert.Empty(t, notifier.Messages)
}

func TestCleanupJob_Run_ListResourcesErrorSkipsGroup(t *testing.T) {
	client := scenarioClient()
	client.ListResourcesErr = map[string]error{"rg-a": fmt.Errorf("throttled")}
	client.Resources["rg-b"] = append(client.Resources["rg-b"],
		resource("rg-b", "ip1", "Microsoft.Network/publicIPAddresses", map[string]*string{"Environment": to.Ptr("Test")}))
	notifier := &mockNotifier{}
	job, hook := newTestJob(t, client, notifier)

	summary, err := job.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"ip1"}, client.Deleted)
	assert.Equal(t, 2, summary.ResourceGroups)
	errors := errorEntries(hook)
	require.Len(t, errors, 1)
	assert.Contains(t, errors[0].Message, "rg-a")
}

func TestCleanupJob_Run_EmptyResourceGroupIsNoop(t *testing.T) {
	client := &mockResourceClient{
		ResourceGroups: []types.ResourceGroup{{Name: "rg-empty"}},
		Resources:      map[string][]types.Resource{},
	}
	notifier := &mockNotifier{}
	job, hook := newTestJob(t, client, notifier)

	summary, err := job.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, client.ListGroupsCalled)
	assert.Empty(t, client.DeleteAttempts)
	assert.Empty(t, notifier.Messages)
	assert.Equal(t, 0, summary.Scanned)
	assert.Empty(t, errorEntries(hook))
}

func TestCleanupJob_Run_RejectsOverlappingRun(t *testing.T) {
	client := scenarioClient()
	client.DeleteStarted = make(chan struct{})
	client.DeleteRelease = make(chan struct{})
	notifier := &mockNotifier{}
	job, _ := newTestJob(t, client, notifier)

	done := make(chan error, 1)
	go func() {
		_, err := job.Run(context.Background())
		done <- err
	}()

	<-client.DeleteStarted
	summary, err := job.Run(context.Background())
	assert.ErrorIs(t, err, ErrRunInProgress)
	assert.Nil(t, summary)

	close(client.DeleteRelease)
	require.NoError(t, <-done)
	assert.Equal(t, []string{"vm1"}, client.Deleted)

	client.DeleteStarted = nil
	_, err = job.Run(context.Background())
	assert.NoError(t, err)
}

func TestCleanupJob_Run_StopsBetweenGroupsWhenCancelled(t *testing.T) {
	client := scenarioClient()
	notifier := &mockNotifier{}
	job, _ := newTestJob(t, client, notifier)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := job.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, client.DeleteAttempts)
}

func TestResourceHasTag(t *testing.T) {
	tests := []struct {
		name string
		tags map[string]*string
		want bool
	}{
		{name: "matching tag", tags: map[string]*string{"Environment": to.Ptr("Test")}, want: true},
		{name: "nil tags", tags: nil, want: false},
		{name: "empty tags", tags: map[string]*string{}, want: false},
		{name: "other value", tags: map[string]*string{"Environment": to.Ptr("Prod")}, want: false},
		{name: "value differs in case", tags: map[string]*string{"Environment": to.Ptr("test")}, want: false},
		{name: "key differs in case", tags: map[string]*string{"environment": to.Ptr("Test")}, want: false},
		{name: "nil value", tags: map[string]*string{"Environment": nil}, want: false},
		{name: "value under other key", tags: map[string]*string{"Stage": to.Ptr("Test")}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &mockResourceClient{
				ResourceGroups: []types.ResourceGroup{{Name: "rg"}},
				Resources:      map[string][]types.Resource{"rg": {resource("rg", "r1", "Microsoft.Storage/storageAccounts", tt.tags)}},
			}
			notifier := &mockNotifier{}
			job, _ := newTestJob(t, client, notifier)

			_, err := job.Run(context.Background())
			require.NoError(t, err)

			assert.Equal(t, tt.want, len(client.Deleted) == 1)
			assert.Equal(t, tt.want, len(notifier.Messages) == 1)
		})
	}
}

func TestClassifyDeletion(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		err        error
		wantStatus types.DeletionStatus
		wantCode   int
	}{
		{name: "200", statusCode: http.StatusOK, wantStatus: types.DeletionStatusSucceeded, wantCode: http.StatusOK},
		{name: "204", statusCode: http.StatusNoContent, wantStatus: types.DeletionStatusSucceeded, wantCode: http.StatusNoContent},
		{name: "202", statusCode: http.StatusAccepted, wantStatus: types.DeletionStatusFailedHttp, wantCode: http.StatusAccepted},
		{name: "missing status", statusCode: 0, wantStatus: types.DeletionStatusFailedHttp, wantCode: 0},
		{name: "response error", err: newResponseError(t, http.StatusConflict, "Conflict", "in use"), wantStatus: types.DeletionStatusFailedHttp, wantCode: http.StatusConflict},
		{name: "failed operation polled with 200", statusCode: http.StatusOK, err: newResponseError(t, http.StatusOK, "Conflict", "in use"), wantStatus: types.DeletionStatusFailedException, wantCode: 0},
		{name: "failed operation polled with 202", statusCode: http.StatusAccepted, err: newResponseError(t, http.StatusAccepted, "Failed", "failed"), wantStatus: types.DeletionStatusFailedException, wantCode: 0},
		{name: "plain error", err: fmt.Errorf("connection reset"), wantStatus: types.DeletionStatusFailedException, wantCode: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome := ClassifyDeletion(types.Resource{Name: "vm1"}, tt.statusCode, tt.err)
			assert.Equal(t, tt.wantStatus, outcome.Status)
			assert.Equal(t, tt.wantCode, outcome.StatusCode)
			assert.True(t, outcome.Status.IsValidDeletionStatus())
		})
	}
}

func newResponseError(t *testing.T, statusCode int, errorCode string, message string) error {
	req, err := http.NewRequest(http.MethodDelete, "https://management.azure.com/subscriptions/x/resourceGroups/rg-a/providers/Microsoft.Compute/virtualMachines/vm1", nil)
	require.NoError(t, err)
	return runtime.NewResponseError(&http.Response{
		StatusCode: statusCode,
		Status:     http.StatusText(statusCode),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(fmt.Sprintf(`{"error":{"code":%q,"message":%q}}`, errorCode, message))),
		Request:    req,
	})
}
