package utils

import (
	"net/url"
	"strings"
)

func IsDomainLocalhost(domain string) bool {
	domainWithoutPort := strings.Split(domain, ":")[0]
	domainParts := strings.Split(domainWithoutPort, ".")
	tld := domainParts[len(domainParts)-1]
	return domainWithoutPort == "localhost" || domainWithoutPort == "127.0.0.1" || tld == "local" || tld == "internal"
}

// LnurlpCallbackURL is the well-known LNURL-pay URL of username at domain. Localhost domains are served over http.
func LnurlpCallbackURL(domain, username string) string {
	scheme := "https"
	if IsDomainLocalhost(domain) {
		scheme = "http"
	}
	callback := url.URL{
		Scheme: scheme,
		Host:   domain,
		Path:   "/.well-known/lnurlp/" + username,
	}
	return callback.String()
}
