package layerz

import (
	"errors"
	"net"
	"net/http"
	"strings"
)

// ErrIPSpoofing is returned when the client IP headers contradict each other.
var ErrIPSpoofing = errors.New("ip spoofing attack: Client-IP not in X-Forwarded-For")

// RemoteIP resolves the client address of r.
// X-Forwarded-For wins, then Client-IP, then the host of RemoteAddr. When
// both headers are present and Client-IP is not one of the forwarded hops
// the lookup fails with ErrIPSpoofing.
func RemoteIP(r *http.Request) (string, error) {
	clientIP := strings.TrimSpace(r.Header.Get("Client-IP"))
	forwarded := forwardedFor(r.Header.Get("X-Forwarded-For"))

	if clientIP != "" && len(forwarded) > 0 && !contains(forwarded, clientIP) {
		return "", ErrIPSpoofing
	}

	for _, ip := range forwarded {
		if isValidIP(ip) {
			return ip, nil
		}
	}
	if clientIP != "" && isValidIP(clientIP) {
		return clientIP, nil
	}
	return extractRemoteIP(r.RemoteAddr), nil
}

func forwardedFor(header string) []string {
	if header == "" {
		return nil
	}
	var hops []string
	for _, hop := range strings.Split(header, ",") {
		if hop = strings.TrimSpace(hop); hop != "" {
			hops = append(hops, hop)
		}
	}
	return hops
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// extractRemoteIP strips the port from RemoteAddr when present.
func extractRemoteIP(remoteAddr string) string {
	ip, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return ip
}

func isValidIP(s string) bool {
	return net.ParseIP(s) != nil
}
