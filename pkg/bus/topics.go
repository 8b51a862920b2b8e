package bus

import "strings"

// Topic naming scheme shared by publishers and subscribers. Topics are
// flat strings; the prefix conveys the audience, the suffix the entity.
const (
	userTopicPrefix     = "user."
	orderTopicPrefix    = "order."
	partnersTopicPrefix = "partners."
)

// UserTopic is the private per-user topic carrying notifications and
// unread count updates.
func UserTopic(userID string) string {
	return userTopicPrefix + userID
}

// OrderTopic carries live status events for a single order.
func OrderTopic(orderID string) string {
	return orderTopicPrefix + orderID
}

// PartnersTopic carries region-wide partner announcements.
func PartnersTopic(region string) string {
	return partnersTopicPrefix + region
}

// IsUserTopic reports whether the topic is a per-user topic, and if so
// whose.
func IsUserTopic(topic string) (string, bool) {
	userID, ok := strings.CutPrefix(topic, userTopicPrefix)
	if !ok || userID == "" {
		return "", false
	}
	return userID, true
}
