package types

type NotificationMessage struct {
	Subject   string
	Body      string
	Recipient string
}

// NotificationResult describes a single delivery attempt. Delivery failures are
// reported here and never returned as errors.
type NotificationResult struct {
	Recipient  string
	Delivered  bool
	StatusCode int
	Temporary  bool
	Err        error
}
