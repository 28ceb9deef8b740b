package ratelimit

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ProxyPolicy определяет доверие к заголовкам обратного прокси
type ProxyPolicy struct {
	// TrustForwardedHeaders разрешает читать X-Forwarded-For и X-Real-IP
	TrustForwardedHeaders bool
	// TrustedHops 0: первая запись X-Forwarded-For; N>0: N-я запись справа.
	// Цепочка короче N не могла пройти через все прокси, и тогда используется адрес соединения.
	TrustedHops int
}

// ClientIP определяет адрес клиента
func (p ProxyPolicy) ClientIP(r *http.Request) string {
	if p.TrustForwardedHeaders {
		ip, spoofed := p.fromForwardedFor(r.Header.Values("X-Forwarded-For"))
		if spoofed {
			return peerIP(r.RemoteAddr)
		}
		if ip != "" {
			return ip
		}
		if ip := normalizeIP(r.Header.Get("X-Real-IP")); ip != "" {
			return ip
		}
	}
	return peerIP(r.RemoteAddr)
}

// fromForwardedFor возвращает адрес клиента из X-Forwarded-For.
// spoofed означает, что записей меньше, чем доверенных прокси.
func (p ProxyPolicy) fromForwardedFor(headers []string) (ip string, spoofed bool) {
	var hops []string
	for _, h := range headers {
		for _, part := range strings.Split(h, ",") {
			if part = strings.TrimSpace(part); part != "" {
				hops = append(hops, part)
			}
		}
	}
	if len(hops) == 0 {
		return "", false
	}
	if p.TrustedHops > len(hops) {
		return "", true
	}

	idx := 0
	if p.TrustedHops > 0 {
		idx = len(hops) - p.TrustedHops
	}
	return normalizeIP(hops[idx]), false
}

func normalizeIP(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	addr, err := netip.ParseAddr(value)
	if err != nil {
		// host:port или [v6]:port
		if ap, apErr := netip.ParseAddrPort(value); apErr == nil {
			return ap.Addr().Unmap().String()
		}
		return ""
	}
	return addr.Unmap().String()
}

func peerIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	if ip := normalizeIP(host); ip != "" {
		return ip
	}
	return host
}

// UserIdentifier ключ субъекта для аутентифицированного пользователя
func UserIdentifier(username string) string {
	return "user:" + username
}

// IPIdentifier ключ субъекта для анонимного запроса
func IPIdentifier(ip string) string {
	return "ip:" + ip
}

// SubjectFor строит субъекта проверки. Пустой username означает анонимный запрос.
func SubjectFor(r *http.Request, proxy ProxyPolicy, username string, role Role) Subject {
	ip := proxy.ClientIP(r)
	id := IPIdentifier(ip)
	if username != "" {
		id = UserIdentifier(username)
	}
	return Subject{Identifier: id, IP: ip, Role: role}
}
