// Zenter Bridge - Access Control Edge Bridge
// Copyright 2026 Zenter
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zenterhq/zenter-bridge

package isapi

import (
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/goccy/go-json"
)

// jsonStatus is the superset of status shapes the device returns in
// JSON mode. Different firmware lines populate different fields; any
// one of them can signal success.
type jsonStatus struct {
	StatusCode        json.Number `json:"statusCode"`
	StatusString      string      `json:"statusString"`
	FingerPrintStatus struct {
		StatusList []struct {
			CardReaderRecvStatus json.Number `json:"cardReaderRecvStatus"`
		} `json:"StatusList"`
	} `json:"FingerPrintStatus"`
}

// IsOK reports whether a device response body indicates success, in
// any of the recognized shapes: JSON statusCode==1, JSON
// statusString=="ok", a fingerprint per-reader status list, or the
// legacy XML statusCode/statusString elements.
func IsOK(body []byte) bool {
	var st jsonStatus
	if err := json.Unmarshal(body, &st); err == nil {
		if n, err := st.StatusCode.Int64(); err == nil && n == 1 {
			return true
		}
		if strings.EqualFold(st.StatusString, "ok") {
			return true
		}
		for _, item := range st.FingerPrintStatus.StatusList {
			if n, err := item.CardReaderRecvStatus.Int64(); err == nil && n == 1 {
				return true
			}
		}
	}

	if sc := xmlTag(body, "statusCode"); sc != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(sc)); err == nil && n == 1 {
			return true
		}
	}
	if ss := xmlTag(body, "statusString"); strings.EqualFold(strings.TrimSpace(ss), "ok") {
		return true
	}
	return false
}

// alreadyExistsSentinels are the substrings (lowercased body) by which
// firmware reports that a user or card record already exists.
var alreadyExistsSentinels = []string{
	"deviceuseralreadyexist",
	"useralreadyexist",
	"empnoalreadyexist",
	"cardnoalreadyexist",
	"cardalreadyexist",
}

// notFoundSentinels are the substrings by which firmware reports a
// missing record on delete.
var notFoundSentinels = []string{
	"notexist",
	"not exist",
	"notfound",
	"not found",
	"no record",
	"no data",
}

// IsAlreadyExists reports whether the body is an already-exists refusal.
func IsAlreadyExists(body []byte) bool {
	return containsAny(body, alreadyExistsSentinels)
}

// IsNotFound reports whether the body is a record-not-found refusal.
func IsNotFound(body []byte) bool {
	return containsAny(body, notFoundSentinels)
}

func containsAny(body []byte, needles []string) bool {
	lower := strings.ToLower(string(body))
	for _, n := range needles {
		if strings.Contains(lower, n) {
			return true
		}
	}
	return false
}

// xmlTagPatterns caches compiled per-tag extraction patterns.
var (
	xmlTagMu       sync.Mutex
	xmlTagPatterns = map[string]*regexp.Regexp{}
)

// xmlTag extracts the text content of the first occurrence of tag,
// tolerating namespace prefixes and attributes. The legacy format is
// not schema-stable enough for a typed decode.
func xmlTag(body []byte, tag string) string {
	xmlTagMu.Lock()
	re, ok := xmlTagPatterns[tag]
	if !ok {
		re = regexp.MustCompile(`(?is)<(?:\w+:)?` + regexp.QuoteMeta(tag) + `[^>]*>(.*?)</(?:\w+:)?` + regexp.QuoteMeta(tag) + `>`)
		xmlTagPatterns[tag] = re
	}
	xmlTagMu.Unlock()
	m := re.FindSubmatch(body)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(string(m[1]))
}
