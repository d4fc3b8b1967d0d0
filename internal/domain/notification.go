package domain

import "time"

type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

type Message struct {
	Channel Channel `json:"channel" bson:"channel"`
	To      string  `json:"to" bson:"to"`
	Subject string  `json:"subject,omitempty" bson:"subject,omitempty"`
	Body    string  `json:"body" bson:"body"`
	OrderID string  `json:"orderId,omitempty" bson:"order_id,omitempty"`
	Event   string  `json:"event" bson:"event"`
}

// Delivery is the audit record written for every send attempt.
type Delivery struct {
	Message  Message   `json:"message" bson:"message"`
	Sender   string    `json:"sender" bson:"sender"`
	Error    string    `json:"error,omitempty" bson:"error,omitempty"`
	SentAt   time.Time `json:"sentAt" bson:"sent_at"`
	Duration string    `json:"duration" bson:"duration"`
}
