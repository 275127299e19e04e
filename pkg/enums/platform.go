package enums

import "fmt"

// Platform identifies the storefront an order or store originates from.
type Platform string

const (
	PlatformShopify     Platform = "shopify"
	PlatformWooCommerce Platform = "woocommerce"
	PlatformEtsy        Platform = "etsy"
	PlatformAPI         Platform = "api"
)

var validPlatforms = []Platform{
	PlatformShopify,
	PlatformWooCommerce,
	PlatformEtsy,
	PlatformAPI,
}

// String implements fmt.Stringer.
func (v Platform) String() string {
	return string(v)
}

// IsValid reports whether the value is a known Platform.
func (v Platform) IsValid() bool {
	for _, candidate := range validPlatforms {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParsePlatform converts raw input into a Platform.
func ParsePlatform(value string) (Platform, error) {
	for _, candidate := range validPlatforms {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid platform %q", value)
}
