package types

type ResourceGroup struct {
	ID       string
	Name     string
	Location string
}

type Resource struct {
	ID            string
	Name          string
	Type          string
	ResourceGroup string
	Location      string
	Tags          map[string]*string
}

// HasTag reports whether the resource carries tagKey with exactly tagValue.
// A nil tag map or a nil tag value never matches.
func (resource Resource) HasTag(tagKey string, tagValue string) bool {
	if resource.Tags == nil {
		return false
	}
	value, ok := resource.Tags[tagKey]
	if !ok || value == nil {
		return false
	}
	return *value == tagValue
}
