package ratelimit

import (
	"fmt"
	"net/netip"
	"strings"
)

// AccessList список IP адресов, сетей (CIDR) и идентификаторов
type AccessList struct {
	exact    map[string]struct{}
	prefixes []netip.Prefix
	entries  []string
}

// NewAccessList разбирает записи списка. Записи с "/" считаются сетями.
func NewAccessList(entries []string) (*AccessList, error) {
	a := &AccessList{exact: make(map[string]struct{}, len(entries))}
	for _, raw := range entries {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("invalid network %q: %w", entry, err)
			}
			a.prefixes = append(a.prefixes, prefix.Masked())
		} else if addr, err := netip.ParseAddr(entry); err == nil {
			a.exact[addr.Unmap().String()] = struct{}{}
		} else {
			a.exact[entry] = struct{}{}
		}
		a.entries = append(a.entries, entry)
	}
	return a, nil
}

// Contains сообщает, совпадает ли хотя бы одно значение с записью списка
func (a *AccessList) Contains(values ...string) bool {
	if a == nil {
		return false
	}
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := a.exact[v]; ok {
			return true
		}
		addr, err := netip.ParseAddr(v)
		if err != nil {
			continue
		}
		addr = addr.Unmap()
		if _, ok := a.exact[addr.String()]; ok {
			return true
		}
		for _, p := range a.prefixes {
			if p.Contains(addr) {
				return true
			}
		}
	}
	return false
}

// Entries возвращает исходные записи списка
func (a *AccessList) Entries() []string {
	if a == nil {
		return nil
	}
	return append([]string(nil), a.entries...)
}
