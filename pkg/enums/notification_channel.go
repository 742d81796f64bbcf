package enums

// NotificationChannel is an independent outbound delivery path.
type NotificationChannel string

const (
	NotificationChannelEmail   NotificationChannel = "email"
	NotificationChannelWebhook NotificationChannel = "webhook"
)

// ConsumerName is the idempotency scope used for per-channel dedupe.
func (c NotificationChannel) ConsumerName() string {
	return "notify-" + string(c)
}
