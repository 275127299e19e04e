package enums

import "fmt"

// NotificationType maps to the notifications.type column.
type NotificationType string

const (
	NotificationTypeOrderCreated       NotificationType = "order_created"
	NotificationTypeOrderUpdated       NotificationType = "order_updated"
	NotificationTypeOrderStatusChanged NotificationType = "order_status_changed"
	NotificationTypeOrderShipped       NotificationType = "order_shipped"
	NotificationTypeOrderCancelled     NotificationType = "order_cancelled"
	NotificationTypeQuotaWarning       NotificationType = "quota_warning"
	NotificationTypeFulfillmentFailed  NotificationType = "fulfillment_failed"
)

var validNotificationTypes = []NotificationType{
	NotificationTypeOrderCreated,
	NotificationTypeOrderUpdated,
	NotificationTypeOrderStatusChanged,
	NotificationTypeOrderShipped,
	NotificationTypeOrderCancelled,
	NotificationTypeQuotaWarning,
	NotificationTypeFulfillmentFailed,
}

// String implements fmt.Stringer.
func (v NotificationType) String() string {
	return string(v)
}

// IsValid reports whether the value is a known NotificationType.
func (v NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseNotificationType converts raw input into a NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}
