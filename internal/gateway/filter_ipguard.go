package gateway

import (
	"context"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// IPGuard admits only whitelisted client addresses. Entries are
// literal addresses or IPv4 CIDR blocks; IPv6 matches by literal
// equality only. An empty whitelist admits nothing.
type IPGuard struct {
	whitelist []string
	logger    *zap.Logger
}

// NewIPGuard creates the whitelist filter.
func NewIPGuard(whitelist []string, logger *zap.Logger) *IPGuard {
	return &IPGuard{whitelist: whitelist, logger: logger}
}

func (f *IPGuard) Name() string { return "ip_guard" }

func (f *IPGuard) Run(_ context.Context, ex *Exchange) error {
	for _, entry := range f.whitelist {
		if ipMatches(ex.ClientIP, entry) {
			return nil
		}
	}
	f.logger.Warn("client ip not whitelisted",
		zap.String("request_id", ex.RequestID),
		zap.String("client_ip", ex.ClientIP))
	ex.Reject(RejectForbidden())
	return nil
}

// ipMatches checks one whitelist entry: exact string equality first,
// then IPv4 CIDR containment.
func ipMatches(ip, entry string) bool {
	if ip == entry {
		return true
	}
	slash := strings.IndexByte(entry, '/')
	if slash < 0 {
		return false
	}

	network, ok := parseIPv4(entry[:slash])
	if !ok {
		return false
	}
	prefix, err := strconv.Atoi(entry[slash+1:])
	if err != nil || prefix < 0 || prefix > 32 {
		return false
	}
	addr, ok := parseIPv4(ip)
	if !ok {
		return false
	}

	var mask uint32
	if prefix > 0 {
		mask = 0xFFFFFFFF << (32 - prefix)
	}
	return addr&mask == network&mask
}

// parseIPv4 parses a dotted-quad address into its 32-bit value.
func parseIPv4(s string) (uint32, bool) {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return 0, false
	}
	var v uint32
	for _, p := range parts {
		octet, err := strconv.Atoi(p)
		if err != nil || octet < 0 || octet > 255 {
			return 0, false
		}
		v = v<<8 | uint32(octet)
	}
	return v, true
}
