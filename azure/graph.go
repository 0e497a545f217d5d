package azure

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/arm"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resourcegraph/armresourcegraph"

	"github.com/azure/tagged-resource-cleanup/types"
)

const (
	resourceGroupsQuery = `resourcecontainers
| where type =~ 'microsoft.resources/subscriptions/resourcegroups'
| project id, name, location`

	resourcesByGroupQuery = `resources
| where resourceGroup =~ '%s'
| project id, name, type, resourceGroup, location, tags`
)

type IResourceGraphQuerier interface {
	Resources(ctx context.Context, query armresourcegraph.QueryRequest, options *armresourcegraph.ClientResourcesOptions) (armresourcegraph.ClientResourcesResponse, error)
}

// ResourceGraphClient enumerates through Azure Resource Graph and hands deletes to
// the resource manager deleter.
type ResourceGraphClient struct {
	SubscriptionID string
	Querier        IResourceGraphQuerier
	Deleter        IResourceDeleter
	Logger         *logrus.Logger
}

func NewResourceGraphClient(subscriptionID string, cred azcore.TokenCredential, options *arm.ClientOptions, deleter IResourceDeleter, logger *logrus.Logger) (*ResourceGraphClient, error) {
	querier, err := armresourcegraph.NewClient(cred, options)
	if err != nil {
		return nil, fmt.Errorf("creating resource graph client: %w", err)
	}

	return &ResourceGraphClient{
		SubscriptionID: subscriptionID,
		Querier:        querier,
		Deleter:        deleter,
		Logger:         logger,
	}, nil
}

func (graph *ResourceGraphClient) ListResourceGroups(ctx context.Context) ([]types.ResourceGroup, error) {
	rows, err := graph.query(ctx, resourceGroupsQuery)
	if err != nil {
		return nil, fmt.Errorf("listing resource groups in subscription %s: %w", graph.SubscriptionID, err)
	}

	resourceGroups := []types.ResourceGroup{}
	for _, row := range rows {
		name := rowString(row, "name")
		if name == "" {
			continue
		}
		graph.Logger.Tracef("Found Resource Group: %s", name)
		resourceGroups = append(resourceGroups, types.ResourceGroup{
			ID:       rowString(row, "id"),
			Name:     name,
			Location: rowString(row, "location"),
		})
	}
	return resourceGroups, nil
}

func (graph *ResourceGraphClient) ListResources(ctx context.Context, resourceGroup types.ResourceGroup) ([]types.Resource, error) {
	rows, err := graph.query(ctx, fmt.Sprintf(resourcesByGroupQuery, escapeKustoString(resourceGroup.Name)))
	if err != nil {
		return nil, fmt.Errorf("listing resources in resource group %s: %w", resourceGroup.Name, err)
	}

	resources := []types.Resource{}
	for _, row := range rows {
		resource, ok := ResourceFromRow(row)
		if !ok {
			graph.Logger.Debugf("Skipping Resource Graph row without an id: %v", row)
			continue
		}
		resource.ResourceGroup = resourceGroup.Name
		graph.Logger.Tracef("Found Resource ID: %s", resource.ID)
		resources = append(resources, resource)
	}
	return resources, nil
}

func (graph *ResourceGraphClient) DeleteResource(ctx context.Context, resource types.Resource) (int, error) {
	return graph.Deleter.DeleteResource(ctx, resource)
}

func (graph *ResourceGraphClient) query(ctx context.Context, query string) ([]map[string]any, error) {
	graph.Logger.Tracef("Query: %s", query)

	rows := []map[string]any{}
	var skipToken *string
	for {
		queryRequest := armresourcegraph.QueryRequest{
			Query:         to.Ptr(query),
			Subscriptions: []*string{to.Ptr(graph.SubscriptionID)},
			Options: &armresourcegraph.QueryRequestOptions{
				ResultFormat: to.Ptr(armresourcegraph.ResultFormatObjectArray),
				SkipToken:    skipToken,
			},
		}

		res, err := graph.Querier.Resources(ctx, queryRequest, nil)
		if err != nil {
			return nil, err
		}

		results, ok := res.QueryResponse.Data.([]any)
		if !ok && res.QueryResponse.Data != nil {
			return nil, fmt.Errorf("unexpected resource graph result format %T", res.QueryResponse.Data)
		}
		for _, result := range results {
			if row, ok := result.(map[string]any); ok {
				rows = append(rows, row)
			}
		}

		if res.QueryResponse.SkipToken == nil || *res.QueryResponse.SkipToken == "" {
			return rows, nil
		}
		skipToken = res.QueryResponse.SkipToken
	}
}

// ResourceFromRow decodes a Resource Graph object-array row. Non-string tag values
// are dropped. Resource Graph lower-cases the type column, so the type is taken from
// the resource ID to match what the resource manager reports.
func ResourceFromRow(row map[string]any) (types.Resource, bool) {
	resourceID := rowString(row, "id")
	if resourceID == "" {
		return types.Resource{}, false
	}

	resource := types.Resource{
		ID:            resourceID,
		Name:          rowString(row, "name"),
		Type:          resourceTypeFromID(resourceID, rowString(row, "type")),
		ResourceGroup: rowString(row, "resourceGroup"),
		Location:      rowString(row, "location"),
	}

	if rawTags, ok := row["tags"].(map[string]any); ok {
		resource.Tags = map[string]*string{}
		for key, rawValue := range rawTags {
			if value, ok := rawValue.(string); ok {
				resource.Tags[key] = to.Ptr(value)
			}
		}
	}
	return resource, true
}

func resourceTypeFromID(resourceID string, fallback string) string {
	parsed, err := arm.ParseResourceID(resourceID)
	if err != nil || parsed.ResourceType.Namespace == "" || len(parsed.ResourceType.Types) == 0 {
		return fallback
	}
	return parsed.ResourceType.String()
}

func rowString(row map[string]any, key string) string {
	if value, ok := row[key].(string); ok {
		return value
	}
	return ""
}

func escapeKustoString(value string) string {
	return strings.ReplaceAll(strings.ReplaceAll(value, `\`, `\\`), `'`, `\'`)
}
