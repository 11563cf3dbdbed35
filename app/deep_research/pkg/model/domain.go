package model

import (
	"net/url"
	"strings"
)

// IsTrustedDomain 判断 URL 是否属于 .edu / .org / .gov 域名（含 .edu.cn、.gov.uk 这类二级后缀）
func IsTrustedDomain(rawURL string) bool {
	host := Host(rawURL)
	if host == "" {
		return false
	}
	for _, tld := range []string{".edu", ".org", ".gov"} {
		if strings.HasSuffix(host, tld) || strings.Contains(host, tld+".") {
			return true
		}
	}
	return false
}

// Host 返回小写主机名，解析失败返回空串
func Host(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
