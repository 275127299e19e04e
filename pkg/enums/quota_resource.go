package enums

import "fmt"

// QuotaResource names a metered subscription resource.
type QuotaResource string

const (
	ResourceOrders   QuotaResource = "orders"
	ResourceProducts QuotaResource = "products"
	ResourceAPICalls QuotaResource = "api_calls"
	ResourceStorage  QuotaResource = "storage"
)

var validQuotaResources = []QuotaResource{
	ResourceOrders,
	ResourceProducts,
	ResourceAPICalls,
	ResourceStorage,
}

// String implements fmt.Stringer.
func (v QuotaResource) String() string {
	return string(v)
}

// IsValid reports whether the value is a known QuotaResource.
func (v QuotaResource) IsValid() bool {
	for _, candidate := range validQuotaResources {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseQuotaResource converts raw input into a QuotaResource.
func ParseQuotaResource(value string) (QuotaResource, error) {
	for _, candidate := range validQuotaResources {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid quota resource %q", value)
}
