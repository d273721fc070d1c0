package webhooks

import "encoding/json"

// Square event types the ingestor routes on. Anything else is acked and
// dropped so Square doesn't retry events we will never use.
const (
	SquareEventPaymentUpdated  = "payment.updated"
	SquareEventOrderUpdated    = "order.updated"
	SquareEventRefundCreated   = "refund.created"
	SquareEventCustomerUpdated = "customer.updated"
	SquareEventLocationUpdated = "location.updated"
	SquareEventOAuthRevoked    = "oauth.authorization.revoked"
)

// Clover event types.
const (
	CloverEventPaymentProcessed = "PAYMENT_PROCESSED"
	CloverEventOrderCreated     = "ORDER_CREATED"
	CloverEventRefundIssued     = "REFUND_ISSUED"
)

type SquareEnvelope struct {
	MerchantId string `json:"merchant_id" binding:"required"`
	Type       string `json:"type" binding:"required"`
	EventId    string `json:"event_id" binding:"required"`
	CreatedAt  string `json:"created_at"`
	Data       struct {
		Type   string          `json:"type"`
		Id     string          `json:"id"`
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type squareMoney struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type squarePayment struct {
	Id          string      `json:"id"`
	OrderId     string      `json:"order_id"`
	LocationId  string      `json:"location_id"`
	CustomerId  string      `json:"customer_id"`
	Status      string      `json:"status"`
	AmountMoney squareMoney `json:"amount_money"`
}

type squarePaymentWrapper struct {
	Payment squarePayment `json:"payment"`
}

type squareRefund struct {
	Id         string `json:"id"`
	PaymentId  string `json:"payment_id"`
	Status     string `json:"status"`
	LocationId string `json:"location_id"`
}

type squareRefundWrapper struct {
	Refund squareRefund `json:"refund"`
}

type squareCustomer struct {
	Id          string `json:"id"`
	GivenName   string `json:"given_name"`
	FamilyName  string `json:"family_name"`
	PhoneNumber string `json:"phone_number"`
}

type CloverEnvelope struct {
	AppId      string `json:"appId"`
	MerchantId string `json:"merchantId" binding:"required"`
	EventId    string `json:"eventId" binding:"required"`
	Type       string `json:"type" binding:"required"`
	ObjectId   string `json:"objectId"`

	Payment *cloverPayment `json:"payment"`
	Refund  *cloverRefund  `json:"refund"`
}

type cloverPayment struct {
	Id       string `json:"id"`
	Amount   int64  `json:"amount"` // cents
	Currency string `json:"currency"`
	Device   struct {
		Id string `json:"id"`
	} `json:"device"`
	Customer *cloverCustomer `json:"customer"`
}

type cloverRefund struct {
	Id        string `json:"id"`
	PaymentId string `json:"paymentId"`
	Amount    int64  `json:"amount"`
}

type cloverCustomer struct {
	Id           string `json:"id"`
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	PhoneNumbers []struct {
		PhoneNumber string `json:"phoneNumber"`
	} `json:"phoneNumbers"`
}

// PubSubPushEnvelope is the wrapper Google wraps push deliveries in.
type PubSubPushEnvelope struct {
	Message struct {
		Data        []byte            `json:"data"`
		MessageId   string            `json:"messageId"`
		Attributes  map[string]string `json:"attributes"`
		PublishTime string            `json:"publishTime"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}
