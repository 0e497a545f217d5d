package azure

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/arm"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armresources"

	"github.com/azure/tagged-resource-cleanup/types"
)

type IResourceLister interface {
	ListResourceGroups(ctx context.Context) ([]types.ResourceGroup, error)
	ListResources(ctx context.Context, resourceGroup types.ResourceGroup) ([]types.Resource, error)
}

type IResourceDeleter interface {
	DeleteResource(ctx context.Context, resource types.Resource) (int, error)
}

type IResourceClient interface {
	IResourceLister
	IResourceDeleter
}

type ResourceClient struct {
	SubscriptionID       string
	ResourceGroupsClient *armresources.ResourceGroupsClient
	ResourcesClient      *armresources.Client
	ProvidersClient      *armresources.ProvidersClient
	PollFrequency        time.Duration
	Logger               *logrus.Logger

	apiVersions map[string]string
}

func NewResourceClient(subscriptionID string, cred azcore.TokenCredential, options *arm.ClientOptions, logger *logrus.Logger) (*ResourceClient, error) {
	clientFactory, err := armresources.NewClientFactory(subscriptionID, cred, options)
	if err != nil {
		return nil, fmt.Errorf("creating resource manager clients for subscription %s: %w", subscriptionID, err)
	}

	return &ResourceClient{
		SubscriptionID:       subscriptionID,
		ResourceGroupsClient: clientFactory.NewResourceGroupsClient(),
		ResourcesClient:      clientFactory.NewClient(),
		ProvidersClient:      clientFactory.NewProvidersClient(),
		Logger:               logger,
		apiVersions:          map[string]string{},
	}, nil
}

func (client *ResourceClient) ListResourceGroups(ctx context.Context) ([]types.ResourceGroup, error) {
	resourceGroups := []types.ResourceGroup{}

	pager := client.ResourceGroupsClient.NewListPager(nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing resource groups in subscription %s: %w", client.SubscriptionID, err)
		}
		for _, resourceGroup := range page.Value {
			if resourceGroup == nil || resourceGroup.Name == nil {
				continue
			}
			client.Logger.Tracef("Found Resource Group: %s", *resourceGroup.Name)
			resourceGroups = append(resourceGroups, types.ResourceGroup{
				ID:       stringValue(resourceGroup.ID),
				Name:     *resourceGroup.Name,
				Location: stringValue(resourceGroup.Location),
			})
		}
	}
	return resourceGroups, nil
}

func (client *ResourceClient) ListResources(ctx context.Context, resourceGroup types.ResourceGroup) ([]types.Resource, error) {
	resources := []types.Resource{}

	pager := client.ResourcesClient.NewListByResourceGroupPager(resourceGroup.Name, nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing resources in resource group %s: %w", resourceGroup.Name, err)
		}
		for _, resource := range page.Value {
			if resource == nil || resource.ID == nil {
				continue
			}
			client.Logger.Tracef("Found Resource ID: %s", *resource.ID)
			resources = append(resources, types.Resource{
				ID:            *resource.ID,
				Name:          stringValue(resource.Name),
				Type:          stringValue(resource.Type),
				ResourceGroup: resourceGroup.Name,
				Location:      stringValue(resource.Location),
				Tags:          resource.Tags,
			})
		}
	}
	return resources, nil
}

// DeleteResource deletes a resource by ID and blocks until the operation is terminal.
// It returns the HTTP status of the terminal response. When the service rejects the
// request the status of the failing response is returned alongside the error.
func (client *ResourceClient) DeleteResource(ctx context.Context, resource types.Resource) (int, error) {
	apiVersion, err := client.resolveAPIVersion(ctx, resource.Type)
	if err != nil {
		return 0, err
	}

	var rawResponse *http.Response
	ctx = policy.WithCaptureResponse(ctx, &rawResponse)

	client.Logger.Debugf("Deleting Resource ID %s with api-version %s", resource.ID, apiVersion)
	poller, err := client.ResourcesClient.BeginDeleteByID(ctx, resource.ID, apiVersion, nil)
	if err != nil {
		return StatusCodeFromError(err), err
	}

	var pollOptions *runtime.PollUntilDoneOptions
	if client.PollFrequency > 0 {
		pollOptions = &runtime.PollUntilDoneOptions{Frequency: client.PollFrequency}
	}
	if _, err := poller.PollUntilDone(ctx, pollOptions); err != nil {
		return StatusCodeFromError(err), err
	}

	if rawResponse == nil {
		return 0, fmt.Errorf("delete of %s completed without a terminal response", resource.ID)
	}
	return rawResponse.StatusCode, nil
}

// StatusCodeFromError extracts the HTTP status carried by an Azure response error, or 0.
func StatusCodeFromError(err error) int {
	var responseError *azcore.ResponseError
	if errors.As(err, &responseError) {
		return responseError.StatusCode
	}
	return 0
}

func (client *ResourceClient) resolveAPIVersion(ctx context.Context, resourceType string) (string, error) {
	cacheKey := strings.ToLower(resourceType)
	if apiVersion, ok := client.apiVersions[cacheKey]; ok {
		return apiVersion, nil
	}

	providerNamespace, typeName, found := strings.Cut(resourceType, "/")
	if !found || providerNamespace == "" || typeName == "" {
		return "", fmt.Errorf("invalid resource type %q", resourceType)
	}

	response, err := client.ProvidersClient.Get(ctx, providerNamespace, nil)
	if err != nil {
		return "", fmt.Errorf("reading provider %s: %w", providerNamespace, err)
	}

	for _, providerResourceType := range response.ResourceTypes {
		if providerResourceType == nil || !strings.EqualFold(stringValue(providerResourceType.ResourceType), typeName) {
			continue
		}
		apiVersion := SelectAPIVersion(providerResourceType.APIVersions)
		if apiVersion == "" {
			break
		}
		client.Logger.Tracef("Resolved api-version %s for %s", apiVersion, resourceType)
		client.apiVersions[cacheKey] = apiVersion
		return apiVersion, nil
	}

	return "", fmt.Errorf("no api-version found for resource type %s", resourceType)
}

// SelectAPIVersion returns the newest stable api-version, falling back to the newest
// preview when the provider only publishes previews.
func SelectAPIVersion(apiVersions []*string) string {
	versions := []string{}
	for _, apiVersion := range apiVersions {
		if apiVersion != nil && *apiVersion != "" {
			versions = append(versions, *apiVersion)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(versions)))

	for _, version := range versions {
		if !strings.Contains(strings.ToLower(version), "preview") {
			return version
		}
	}
	if len(versions) > 0 {
		return versions[0]
	}
	return ""
}

func stringValue(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
