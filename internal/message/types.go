// Package message defines the persisted conversation trail: connections,
// users, incoming and outgoing messages, and the routed requests that link them.
package message

import (
	"strings"
	"time"
)

// MaxTextLength bounds the text of a single message (three concatenated SMS parts).
const MaxTextLength = 160 * 3

const uriSeparator = "://"

// Connection identifies a device or channel as transport://ident.
type Connection struct {
	URI    string `json:"uri"`
	UserID *int64 `json:"user_id,omitempty"`
}

// Transport returns the transport token of the connection URI.
func (c Connection) Transport() string {
	transport, _, _ := SplitURI(c.URI)
	return transport
}

// Ident returns the channel-local identity of the connection URI.
func (c Connection) Ident() string {
	_, ident, _ := SplitURI(c.URI)
	return ident
}

func (c Connection) String() string {
	return c.Ident()
}

// BuildURI joins a transport name and an identity into a connection URI.
func BuildURI(transport, ident string) string {
	return strings.TrimSpace(transport) + uriSeparator + strings.TrimSpace(ident)
}

// SplitURI splits a connection URI on the first "://".
func SplitURI(uri string) (transport, ident string, ok bool) {
	transport, ident, ok = strings.Cut(uri, uriSeparator)
	if !ok {
		return "", uri, false
	}
	return transport, ident, true
}

// TransportPrefix returns the URI prefix shared by every connection of a transport.
func TransportPrefix(transport string) string {
	return strings.TrimSpace(transport) + uriSeparator
}

// User owns zero or more connections.
type User struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Incoming is a message received from a connection.
type Incoming struct {
	ID   int64     `json:"id"`
	URI  string    `json:"uri"`
	Text string    `json:"text"`
	Time time.Time `json:"time"`
}

// Connection returns the connection reference of the message.
func (m Incoming) Connection() Connection {
	return Connection{URI: m.URI}
}

// Outgoing is a message queued for delivery to a connection.
//
// Time is the send timestamp; Delivery is set once the channel confirms
// delivery. Abandoned marks a row the delivery worker gave up on.
type Outgoing struct {
	ID           int64      `json:"id"`
	URI          string     `json:"uri"`
	Text         string     `json:"text"`
	Time         *time.Time `json:"time,omitempty"`
	InResponseTo *int64     `json:"in_response_to,omitempty"`
	DeliveryID   string     `json:"delivery_id,omitempty"`
	Delivery     *time.Time `json:"delivery,omitempty"`
	Abandoned    *time.Time `json:"abandoned,omitempty"`
}

// Connection returns the destination connection reference.
func (m Outgoing) Connection() Connection {
	return Connection{URI: m.URI}
}

// Sent reports whether the message has a send timestamp.
func (m Outgoing) Sent() bool {
	return m.Time != nil
}

// Delivered reports whether the channel confirmed delivery.
func (m Outgoing) Delivered() bool {
	return m.Delivery != nil
}

// IsReply reports whether the message answers the request it links to,
// as opposed to an alert sent to a different connection. requestURI is the
// URI of the incoming message that owns the linked request.
func (m Outgoing) IsReply(requestURI string) bool {
	if m.InResponseTo == nil {
		return false
	}
	return m.URI == requestURI
}

// Request is one routed slice of an incoming message's text.
type Request struct {
	ID        int64  `json:"id"`
	MessageID int64  `json:"message_id"`
	Text      string `json:"text"`
	RouteSlug string `json:"route,omitempty"`
	Erroneous bool   `json:"erroneous"`
}

// Route is a descriptive label for a kind of handler.
type Route struct {
	Slug string `json:"slug"`
	Name string `json:"name"`
}

// Truncate cuts text to MaxTextLength runes.
func Truncate(text string) string {
	runes := []rune(text)
	if len(runes) <= MaxTextLength {
		return text
	}
	return string(runes[:MaxTextLength])
}
