// Package mail models email messages independently of their transport. The
// actual SMTP (or provider API) delivery lives behind the Transport
// interface; inbound mail enters through the ingress dispatcher in the
// inforequests package.
package mail

import (
	"context"
	"fmt"
	"time"
)

// Direction of a message.
type Direction int16

const (
	Inbound  Direction = 1
	Outbound Direction = 2
)

// Recipient kinds.
type RecipientKind int16

const (
	KindTo  RecipientKind = 1
	KindCc  RecipientKind = 2
	KindBcc RecipientKind = 3
)

// Recipient statuses. Inbound recipients carry StatusInbound; outbound
// recipients progress from queued to a terminal status reported by the
// transport.
type RecipientStatus int16

const (
	StatusInbound   RecipientStatus = 1
	StatusUndefined RecipientStatus = 2
	StatusQueued    RecipientStatus = 3
	StatusRejected  RecipientStatus = 4
	StatusInvalid   RecipientStatus = 5
	StatusSent      RecipientStatus = 6
	StatusDelivered RecipientStatus = 7
	StatusOpened    RecipientStatus = 8
)

// Recipient is one typed address on a message.
type Recipient struct {
	ID        int64
	MessageID int64
	Name      string
	Mail      string
	Kind      RecipientKind
	Status    RecipientStatus
}

// FormatAddress renders "Name <mail>" or the bare address.
func (r Recipient) FormatAddress() string {
	if r.Name == "" {
		return r.Mail
	}
	return fmt.Sprintf("%s <%s>", r.Name, r.Mail)
}

// Message is one inbound or outbound email.
type Message struct {
	ID         int64
	Direction  Direction
	Processed  time.Time
	FromName   string
	FromMail   string
	Subject    string
	Text       string
	HTML       string
	Headers    map[string]string
	Recipients []Recipient
}

// Attachment is the payload handed to the transport alongside a message.
type Attachment struct {
	Name        string
	ContentType string
	Content     []byte
}

// Transport delivers outbound messages. Implementations live outside the
// core (SMTP, provider API); tests use a recording stub.
type Transport interface {
	Send(ctx context.Context, msg *Message, attachments []Attachment) error
}
