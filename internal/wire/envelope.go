package wire

import (
	"errors"
	"fmt"
	"hash/crc32"
	"strconv"
	"strings"
)

// EnvelopeDelimiter separates the fields of an encoded envelope.
const EnvelopeDelimiter = "#$#"

// ErrMalformedEnvelope is returned when received text is not a valid envelope.
var ErrMalformedEnvelope = errors.New("malformed envelope")

// Category tags the payload carried by an envelope.
type Category int

// Category values are part of the wire format.
const (
	CategoryMACAddress  Category = 1
	CategoryGroupRoster Category = 2
	CategoryChat        Category = 3
	CategoryAck         Category = 4
	CategoryRouteAck    Category = 5
)

func (c Category) String() string {
	switch c {
	case CategoryMACAddress:
		return "MAC_ADDRESS"
	case CategoryGroupRoster:
		return "GROUP_ROSTER"
	case CategoryChat:
		return "CHAT"
	case CategoryAck:
		return "ACK"
	case CategoryRouteAck:
		return "ROUTE_ACK"
	default:
		return "UNKNOWN(" + strconv.Itoa(int(c)) + ")"
	}
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	return c >= CategoryMACAddress && c <= CategoryRouteAck
}

// Envelope is the outer wire structure. AckID is the checksum of Body for
// CHAT, the acknowledged id for ACK and zero otherwise.
type Envelope struct {
	Category Category
	AckID    uint64
	Body     string
}

// Checksum computes the ack id of a chat payload. Equal payloads share an id.
func Checksum(body string) uint64 {
	return uint64(crc32.ChecksumIEEE([]byte(body)))
}

// NewChatEnvelope wraps an encoded row and computes its ack id.
func NewChatEnvelope(row Row) Envelope {
	body := row.Encode()
	return Envelope{Category: CategoryChat, AckID: Checksum(body), Body: body}
}

// NewAckEnvelope acknowledges the chat envelope with the given id.
func NewAckEnvelope(ackID uint64) Envelope {
	return Envelope{Category: CategoryAck, AckID: ackID}
}

// NewMACAddressEnvelope announces a device address.
func NewMACAddressEnvelope(addr string) Envelope {
	return Envelope{Category: CategoryMACAddress, Body: addr}
}

// NewRosterEnvelope carries the group's peer list.
func NewRosterEnvelope(peers []string) Envelope {
	return Envelope{Category: CategoryGroupRoster, Body: EncodeRoster(peers)}
}

// Encode returns the wire form of the envelope.
func (e Envelope) Encode() string {
	return strconv.Itoa(int(e.Category)) + EnvelopeDelimiter +
		strconv.FormatUint(e.AckID, 10) + EnvelopeDelimiter + e.Body
}

// Row decodes the body of a CHAT envelope.
func (e Envelope) Row() (Row, error) {
	if e.Category != CategoryChat {
		return Row{}, fmt.Errorf("%w: %s envelope has no row", ErrMalformedRow, e.Category)
	}
	return DecodeRow(e.Body)
}

// EncodeEnvelope returns the wire form of env.
func EncodeEnvelope(env Envelope) string {
	return env.Encode()
}

// DecodeEnvelope parses received text. The body keeps everything after the
// second delimiter, so payloads may contain the delimiter. The ack id is
// taken as transmitted.
func DecodeEnvelope(s string) (Envelope, error) {
	parts := strings.SplitN(s, EnvelopeDelimiter, 3)
	if len(parts) != 3 {
		return Envelope{}, fmt.Errorf("%w: expected 3 fields, got %d", ErrMalformedEnvelope, len(parts))
	}

	if !isDigits(parts[0]) {
		return Envelope{}, fmt.Errorf("%w: category %q is not a decimal number", ErrMalformedEnvelope, parts[0])
	}
	category, err := strconv.Atoi(parts[0])
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: category %q: %v", ErrMalformedEnvelope, parts[0], err)
	}
	if !Category(category).Valid() {
		return Envelope{}, fmt.Errorf("%w: unknown category %d", ErrMalformedEnvelope, category)
	}

	ackID, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: ack id %q: %v", ErrMalformedEnvelope, parts[1], err)
	}

	return Envelope{Category: Category(category), AckID: ackID, Body: parts[2]}, nil
}

// isDigits reports whether s is a non-empty run of ASCII digits. Signs are
// rejected so that a decoded envelope re-encodes to the same text.
func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
