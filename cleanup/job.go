package cleanup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/azure/tagged-resource-cleanup/azure"
	"github.com/azure/tagged-resource-cleanup/config"
	"github.com/azure/tagged-resource-cleanup/notify"
	"github.com/azure/tagged-resource-cleanup/types"
)

var ErrRunInProgress = errors.New("a cleanup run is already in progress")

// CleanupJob deletes every resource in the subscription carrying TagKey=TagValue and
// notifies the recipient once per successful deletion. Resources are processed one at
// a time in provider order; a failure on one resource never stops the run.
type CleanupJob struct {
	Config         *config.Config
	ResourceClient azure.IResourceClient
	Notifier       notify.INotifier
	Templates      *notify.MessageTemplates
	Logger         *logrus.Logger

	runLock *semaphore.Weighted
	now     func() time.Time
	newID   func() string
}

func NewCleanupJob(cfg *config.Config, resourceClient azure.IResourceClient, notifier notify.INotifier, templates *notify.MessageTemplates, logger *logrus.Logger) *CleanupJob {
	return &CleanupJob{
		Config:         cfg,
		ResourceClient: resourceClient,
		Notifier:       notifier,
		Templates:      templates,
		Logger:         logger,
		runLock:        semaphore.NewWeighted(1),
		now:            time.Now,
		newID:          func() string { return uuid.New().String() },
	}
}

func (job *CleanupJob) Name() string {
	return "CleanupUnusedResources"
}

// Run performs one pass over the subscription. It returns ErrRunInProgress without
// touching anything when another pass holds the run lock, and an error only when the
// resource groups cannot be enumerated.
func (job *CleanupJob) Run(ctx context.Context) (*types.RunSummary, error) {
	if !job.runLock.TryAcquire(1) {
		job.Logger.Warn("Skipping cleanup run: previous run is still in progress")
		return nil, ErrRunInProgress
	}
	defer job.runLock.Release(1)

	summary := &types.RunSummary{
		RunID:     job.newID(),
		StartedAt: job.now(),
	}
	logger := job.Logger.WithField("runId", summary.RunID)
	logger.Infof("Cleanup function started at: %s", summary.StartedAt.Format(time.RFC3339))

	resourceGroups, err := job.ResourceClient.ListResourceGroups(ctx)
	if err != nil {
		summary.FinishedAt = job.now()
		logger.Errorf("Error listing resource groups: %v", err)
		return summary, fmt.Errorf("listing resource groups: %w", err)
	}

	for _, resourceGroup := range resourceGroups {
		if err := ctx.Err(); err != nil {
			summary.FinishedAt = job.now()
			return summary, err
		}
		summary.ResourceGroups++
		job.processResourceGroup(ctx, logger, resourceGroup, summary)
	}

	summary.FinishedAt = job.now()
	logger.WithFields(logrus.Fields{
		"resourceGroups":       summary.ResourceGroups,
		"scanned":              summary.Scanned,
		"matched":              summary.Matched,
		"deleted":              summary.Deleted,
		"failed":               summary.Failed,
		"notified":             summary.Notified,
		"notificationFailures": summary.NotificationFailures,
	}).Infof("Cleanup function finished at: %s", summary.FinishedAt.Format(time.RFC3339))
	return summary, nil
}

func (job *CleanupJob) processResourceGroup(ctx context.Context, logger *logrus.Entry, resourceGroup types.ResourceGroup, summary *types.RunSummary) {
	logger = logger.WithField("resourceGroup", resourceGroup.Name)
	logger.Infof("Processing Resource Group: %s", resourceGroup.Name)

	resources, err := job.ResourceClient.ListResources(ctx, resourceGroup)
	if err != nil {
		logger.Errorf("Error listing resources in Resource Group '%s': %v", resourceGroup.Name, err)
		return
	}

	for _, resource := range resources {
		summary.Scanned++
		if !resource.HasTag(job.Config.TagKey, job.Config.TagValue) {
			continue
		}
		summary.Matched++

		resourceLogger := logger.WithFields(logrus.Fields{
			"resource":     resource.Name,
			"resourceType": resource.Type,
		})
		resourceLogger.Infof("Resource %s has the tag '%s' with value '%s'. Deleting...", resource.Name, job.Config.TagKey, job.Config.TagValue)

		outcome := job.deleteResource(ctx, resourceLogger, resource)
		summary.AddOutcome(outcome)

		if outcome.Succeeded() {
			summary.AddNotification(job.notify(ctx, resourceLogger, resource))
		}
	}
}

func (job *CleanupJob) deleteResource(ctx context.Context, logger *logrus.Entry, resource types.Resource) types.DeletionOutcome {
	logger.Infof("Deleting Resource: %s (Type: %s)", resource.Name, resource.Type)

	statusCode, err := job.ResourceClient.DeleteResource(ctx, resource)
	outcome := ClassifyDeletion(resource, statusCode, err)

	switch outcome.Status {
	case types.DeletionStatusSucceeded:
		logger.Infof("Deleted Resource: %s (Type: %s)", resource.Name, resource.Type)
	case types.DeletionStatusFailedHttp:
		logger.WithField("status", outcome.StatusCode).Errorf("Failed to delete Resource '%s'. Status: %d", resource.Name, outcome.StatusCode)
		if outcome.Err != nil {
			logger.WithField("status", outcome.StatusCode).Errorf("Error detail: %v", outcome.Err)
		}
	default:
		logger.Errorf("Error deleting Resource '%s': %v", resource.Name, outcome.Err)
		logger.Errorf("Error detail: %+v", errorChain(outcome.Err))
	}
	return outcome
}

func (job *CleanupJob) notify(ctx context.Context, logger *logrus.Entry, resource types.Resource) types.NotificationResult {
	message, err := job.Templates.Render(resource, job.Config.EmailRecipient)
	if err != nil {
		logger.Errorf("Error rendering email alert for Resource '%s': %v", resource.Name, err)
		return types.NotificationResult{Recipient: job.Config.EmailRecipient, Err: err}
	}

	result := job.Notifier.Notify(ctx, message)
	if !result.Delivered {
		logger.Warnf("Resource '%s' was deleted but the email alert to %s was not delivered", resource.Name, result.Recipient)
	}
	return result
}

// ClassifyDeletion maps the terminal result of a delete to an outcome: 200 and 204
// succeed, any other status or an Azure error carrying a non-2xx status is FailedHttp,
// and every other error is FailedException. An operation that was accepted and then
// reported failure while polling carries the 2xx status of the poll, so it is an
// exception rather than an HTTP failure.
func ClassifyDeletion(resource types.Resource, statusCode int, err error) types.DeletionOutcome {
	outcome := types.DeletionOutcome{
		Resource:   resource,
		StatusCode: statusCode,
		Err:        err,
	}

	if err != nil {
		var responseError *azcore.ResponseError
		if errors.As(err, &responseError) && !isSuccessStatusClass(responseError.StatusCode) {
			outcome.Status = types.DeletionStatusFailedHttp
			outcome.StatusCode = responseError.StatusCode
			return outcome
		}
		outcome.Status = types.DeletionStatusFailedException
		outcome.StatusCode = 0
		return outcome
	}

	if types.IsSuccessfulDeleteStatus(statusCode) {
		outcome.Status = types.DeletionStatusSucceeded
		return outcome
	}
	outcome.Status = types.DeletionStatusFailedHttp
	return outcome
}

// isSuccessStatusClass reports a missing or 2xx status.
func isSuccessStatusClass(statusCode int) bool {
	return statusCode == 0 || (statusCode >= 200 && statusCode < 300)
}

func errorChain(err error) []string {
	chain := []string{}
	for err != nil {
		chain = append(chain, err.Error())
		err = errors.Unwrap(err)
	}
	return chain
}
