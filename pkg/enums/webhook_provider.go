package enums

// WebhookProvider names an external system that delivers events.
type WebhookProvider string

const (
	WebhookProviderStripe WebhookProvider = "stripe"
	WebhookProviderClerk  WebhookProvider = "clerk"
	WebhookProviderZoom   WebhookProvider = "zoom"
)

func (p WebhookProvider) String() string {
	return string(p)
}
