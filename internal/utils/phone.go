package utils

import (
	"strings"
)

const (
	userServer      = "c.us"
	groupServer     = "g.us"
	broadcastServer = "broadcast"
	newsletter      = "newsletter"
)

// NormalizePhone strips every non-digit character from a protocol address
// or formatted phone number ("+90 555 123-45-67", "905551234567@c.us").
func NormalizePhone(address string) string {
	// drop the server part first so digits in it are not kept
	if at := strings.IndexByte(address, '@'); at >= 0 {
		address = address[:at]
	}
	// multi-device addresses carry a ":<device>" suffix
	if colon := strings.IndexByte(address, ':'); colon >= 0 {
		address = address[:colon]
	}

	var b strings.Builder
	b.Grow(len(address))
	for _, r := range address {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ChatID returns the one-to-one chat address for a phone number
func ChatID(phone string) string {
	digits := NormalizePhone(phone)
	if digits == "" {
		return ""
	}
	return digits + "@" + userServer
}

// IsOneToOneAddress reports whether the address is a direct user chat, as
// opposed to a group, broadcast list, status feed or channel.
func IsOneToOneAddress(address string) bool {
	if address == "" {
		return false
	}
	at := strings.LastIndexByte(address, '@')
	if at < 0 {
		// bare numbers are treated as user addresses
		return NormalizePhone(address) != ""
	}
	switch address[at+1:] {
	case groupServer, broadcastServer, newsletter:
		return false
	}
	return NormalizePhone(address) != ""
}
