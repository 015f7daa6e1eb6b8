package search

import (
	"bytes"
	"net/http"
	"strings"
)

// edgeBlock describes a 403 issued by a CDN or bot-protection layer in front
// of the search API.
type edgeBlock struct {
	Vendor    string
	RequestID string
	Server    string
}

type edgeDetector func(h http.Header, body []byte) (vendor, requestID string, ok bool)

var edgeDetectors = []edgeDetector{
	detectCloudFront,
	detectCloudflare,
	detectAkamai,
}

// classifyBlock identifies which edge layer produced a 403. Vendor is
// "unknown" when no signature matches.
func classifyBlock(h http.Header, body []byte) edgeBlock {
	block := edgeBlock{Vendor: "unknown", Server: h.Get("Server")}
	for _, d := range edgeDetectors {
		if vendor, id, ok := d(h, body); ok {
			block.Vendor = vendor
			block.RequestID = id
			return block
		}
	}
	block.RequestID = h.Get("X-Request-Id")
	return block
}

func detectCloudFront(h http.Header, body []byte) (string, string, bool) {
	if id := h.Get("X-Amz-Cf-Id"); id != "" {
		return "CloudFront", id, true
	}
	if strings.Contains(strings.ToLower(h.Get("Via")), "cloudfront") ||
		bytes.Contains(body, []byte("Generated by cloudfront")) {
		return "CloudFront", "", true
	}
	return "", "", false
}

func detectCloudflare(h http.Header, body []byte) (string, string, bool) {
	if ray := h.Get("Cf-Ray"); ray != "" {
		return "Cloudflare", ray, true
	}
	if strings.Contains(strings.ToLower(h.Get("Server")), "cloudflare") ||
		bytes.Contains(body, []byte("Attention Required! | Cloudflare")) {
		return "Cloudflare", "", true
	}
	return "", "", false
}

func detectAkamai(h http.Header, body []byte) (string, string, bool) {
	if strings.Contains(strings.ToLower(h.Get("Server")), "akamai") {
		return "Akamai", h.Get("X-Akamai-Request-Id"), true
	}
	if bytes.Contains(body, []byte("Reference #")) && bytes.Contains(body, []byte("Access Denied")) {
		return "Akamai", "", true
	}
	return "", "", false
}
