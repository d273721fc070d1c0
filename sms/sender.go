package sms

import "context"

// Sender delivers one text message and returns the provider's message id.
type Sender interface {
	Send(ctx context.Context, toPhone, body string) (providerMessageId string, err error)
}
