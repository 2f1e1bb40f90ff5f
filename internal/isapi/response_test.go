// Zenter Bridge - Access Control Edge Bridge
// Copyright 2026 Zenter
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zenterhq/zenter-bridge

package isapi

import "testing"

func TestIsOK(t *testing.T) {
	cases := []struct {
		name string
		body string
		want bool
	}{
		{"json status code", `{"statusCode":1,"statusString":"OK"}`, true},
		{"json status code as string", `{"statusCode":"1"}`, true},
		{"json status string only", `{"statusString":"ok"}`, true},
		{"json status string mixed case", `{"statusString":"Ok"}`, true},
		{"json failure", `{"statusCode":4,"statusString":"Invalid Operation"}`, false},
		{"fingerprint reader status", `{"FingerPrintStatus":{"StatusList":[{"id":1,"cardReaderRecvStatus":1}]}}`, true},
		{"fingerprint reader failure", `{"FingerPrintStatus":{"StatusList":[{"cardReaderRecvStatus":0}]}}`, false},
		{"xml status code", `<?xml version="1.0"?><ResponseStatus><statusCode>1</statusCode><statusString>OK</statusString></ResponseStatus>`, true},
		{"xml namespaced", `<hik:ResponseStatus><hik:statusString>OK</hik:statusString></hik:ResponseStatus>`, true},
		{"xml failure", `<ResponseStatus><statusCode>4</statusCode><statusString>Invalid Operation</statusString></ResponseStatus>`, false},
		{"empty body", ``, false},
		{"plain text", `Internal Server Error`, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsOK([]byte(tc.body)); got != tc.want {
				t.Fatalf("IsOK(%q) = %v, want %v", tc.body, got, tc.want)
			}
		})
	}
}

func TestIsAlreadyExists(t *testing.T) {
	existing := []string{
		`{"statusCode":6,"errorMsg":"deviceUserAlreadyExist"}`,
		`{"subStatusCode":"employeeNoAlreadyExist","errorMsg":"empNoAlreadyExist"}`,
		`<ResponseStatus><subStatusCode>cardNoAlreadyExist</subStatusCode></ResponseStatus>`,
	}
	for _, body := range existing {
		if !IsAlreadyExists([]byte(body)) {
			t.Errorf("IsAlreadyExists(%q) = false, want true", body)
		}
	}
	if IsAlreadyExists([]byte(`{"statusCode":4,"errorMsg":"badParameter"}`)) {
		t.Error("IsAlreadyExists matched an unrelated error")
	}
}

func TestIsNotFound(t *testing.T) {
	missing := []string{
		`{"statusCode":7,"errorMsg":"employeeNotExist"}`,
		`{"errorMsg":"record not found"}`,
		`<ResponseStatus><statusString>No Record</statusString></ResponseStatus>`,
	}
	for _, body := range missing {
		if !IsNotFound([]byte(body)) {
			t.Errorf("IsNotFound(%q) = false, want true", body)
		}
	}
	if IsNotFound([]byte(`{"statusCode":1}`)) {
		t.Error("IsNotFound matched a success body")
	}
}

func TestXMLTag(t *testing.T) {
	body := []byte(`<CaptureFingerPrint version="2.0">
  <fingerData> QUJD </fingerData>
  <fingerPrintQuality>87</fingerPrintQuality>
</CaptureFingerPrint>`)

	if got := xmlTag(body, "fingerData"); got != "QUJD" {
		t.Fatalf("fingerData = %q, want %q", got, "QUJD")
	}
	if got := xmlTag(body, "fingerPrintQuality"); got != "87" {
		t.Fatalf("fingerPrintQuality = %q, want %q", got, "87")
	}
	if got := xmlTag(body, "missing"); got != "" {
		t.Fatalf("missing tag = %q, want empty", got)
	}
}
