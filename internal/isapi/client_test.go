// Zenter Bridge - Access Control Edge Bridge
// Copyright 2026 Zenter
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zenterhq/zenter-bridge

package isapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const okJSON = `{"statusCode":1,"statusString":"OK"}`

// deviceStub records requests and serves canned bodies per path prefix.
type deviceStub struct {
	t        *testing.T
	requests []stubRequest
	handler  func(r stubRequest) (int, string)
}

type stubRequest struct {
	Method string
	Path   string
	Body   string
}

func newDeviceStub(t *testing.T, handler func(r stubRequest) (int, string)) (*deviceStub, *Client) {
	t.Helper()
	stub := &deviceStub{t: t, handler: handler}
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)
	return stub, New(strings.TrimPrefix(srv.URL, "http://"), "admin", "secret")
}

func (s *deviceStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	req := stubRequest{Method: r.Method, Path: r.URL.Path + pathQuery(r.URL.RawQuery), Body: string(body)}
	s.requests = append(s.requests, req)
	code, out := s.handler(req)
	w.WriteHeader(code)
	io.WriteString(w, out)
}

func pathQuery(q string) string {
	if q == "" {
		return ""
	}
	return "?" + q
}

func TestEnsureUser(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		stub, c := newDeviceStub(t, func(r stubRequest) (int, string) {
			return http.StatusOK, okJSON
		})
		if err := c.EnsureUser(context.Background(), "1001", "Ana Torres"); err != nil {
			t.Fatalf("EnsureUser: %v", err)
		}
		if len(stub.requests) != 1 {
			t.Fatalf("requests = %d, want 1", len(stub.requests))
		}
		got := stub.requests[0]
		if got.Method != http.MethodPost || got.Path != pathUserRecord {
			t.Fatalf("request = %s %s", got.Method, got.Path)
		}
		for _, want := range []string{`"employeeNo":"1001"`, `"name":"Ana Torres"`, `"userType":"normal"`, `"enable":true`} {
			if !strings.Contains(got.Body, want) {
				t.Errorf("body missing %s: %s", want, got.Body)
			}
		}
	})

	t.Run("already exists is success", func(t *testing.T) {
		_, c := newDeviceStub(t, func(r stubRequest) (int, string) {
			return http.StatusBadRequest, `{"statusCode":6,"errorMsg":"deviceUserAlreadyExist"}`
		})
		if err := c.EnsureUser(context.Background(), "1001", "Ana"); err != nil {
			t.Fatalf("EnsureUser: %v", err)
		}
	})

	t.Run("blank name gets placeholder", func(t *testing.T) {
		stub, c := newDeviceStub(t, func(r stubRequest) (int, string) {
			return http.StatusOK, okJSON
		})
		if err := c.EnsureUser(context.Background(), "1001", "  "); err != nil {
			t.Fatalf("EnsureUser: %v", err)
		}
		if !strings.Contains(stub.requests[0].Body, `"name":"Empleado"`) {
			t.Fatalf("body = %s", stub.requests[0].Body)
		}
	})

	t.Run("missing employee no", func(t *testing.T) {
		_, c := newDeviceStub(t, func(r stubRequest) (int, string) {
			t.Fatal("unexpected request")
			return 0, ""
		})
		if err := c.EnsureUser(context.Background(), " ", "Ana"); !errors.Is(err, ErrMissingEmployeeNo) {
			t.Fatalf("err = %v, want ErrMissingEmployeeNo", err)
		}
	})

	t.Run("device refusal", func(t *testing.T) {
		_, c := newDeviceStub(t, func(r stubRequest) (int, string) {
			return http.StatusBadRequest, `{"statusCode":4,"errorMsg":"badParameter"}`
		})
		err := c.EnsureUser(context.Background(), "1001", "Ana")
		var op *OpError
		if !errors.As(err, &op) || op.Code != "user_upsert_failed" {
			t.Fatalf("err = %v", err)
		}
	})
}

func TestEnsureCard(t *testing.T) {
	t.Run("blank card is no-op", func(t *testing.T) {
		stub, c := newDeviceStub(t, func(r stubRequest) (int, string) {
			return http.StatusOK, okJSON
		})
		if err := c.EnsureCard(context.Background(), "1001", "  "); err != nil {
			t.Fatalf("EnsureCard: %v", err)
		}
		if len(stub.requests) != 0 {
			t.Fatalf("requests = %d, want 0", len(stub.requests))
		}
	})

	t.Run("created", func(t *testing.T) {
		stub, c := newDeviceStub(t, func(r stubRequest) (int, string) {
			return http.StatusOK, okJSON
		})
		if err := c.EnsureCard(context.Background(), "1001", "CARD42"); err != nil {
			t.Fatalf("EnsureCard: %v", err)
		}
		got := stub.requests[0]
		if got.Path != pathCardRecord {
			t.Fatalf("path = %s", got.Path)
		}
		if !strings.Contains(got.Body, `"cardNo":"CARD42"`) || !strings.Contains(got.Body, `"cardType":"normalCard"`) {
			t.Fatalf("body = %s", got.Body)
		}
	})

	t.Run("already exists is success", func(t *testing.T) {
		_, c := newDeviceStub(t, func(r stubRequest) (int, string) {
			return http.StatusBadRequest, `{"errorMsg":"cardNoAlreadyExist"}`
		})
		if err := c.EnsureCard(context.Background(), "1001", "CARD42"); err != nil {
			t.Fatalf("EnsureCard: %v", err)
		}
	})
}

func TestDeleteCard(t *testing.T) {
	t.Run("primary endpoint", func(t *testing.T) {
		stub, c := newDeviceStub(t, func(r stubRequest) (int, string) {
			return http.StatusOK, okJSON
		})
		if err := c.DeleteCard(context.Background(), "1001", "CARD42"); err != nil {
			t.Fatalf("DeleteCard: %v", err)
		}
		if len(stub.requests) != 1 || stub.requests[0].Path != pathCardDelete {
			t.Fatalf("requests = %+v", stub.requests)
		}
	})

	t.Run("falls back to SetUp delete", func(t *testing.T) {
		stub, c := newDeviceStub(t, func(r stubRequest) (int, string) {
			if r.Path == pathCardDelete {
				return http.StatusBadRequest, `{"statusCode":4,"errorMsg":"badParameter"}`
			}
			return http.StatusOK, okJSON
		})
		if err := c.DeleteCard(context.Background(), "1001", "CARD42"); err != nil {
			t.Fatalf("DeleteCard: %v", err)
		}
		if len(stub.requests) != 2 || stub.requests[1].Path != pathCardSetUp {
			t.Fatalf("requests = %+v", stub.requests)
		}
		if !strings.Contains(stub.requests[1].Body, `"deleteCard":true`) {
			t.Fatalf("fallback body = %s", stub.requests[1].Body)
		}
	})

	t.Run("not found is success", func(t *testing.T) {
		_, c := newDeviceStub(t, func(r stubRequest) (int, string) {
			return http.StatusBadRequest, `{"errorMsg":"cardNotExist"}`
		})
		if err := c.DeleteCard(context.Background(), "1001", "CARD42"); err != nil {
			t.Fatalf("DeleteCard: %v", err)
		}
	})

	t.Run("blank identifiers no-op", func(t *testing.T) {
		stub, c := newDeviceStub(t, func(r stubRequest) (int, string) {
			return http.StatusOK, okJSON
		})
		if err := c.DeleteCard(context.Background(), "", ""); err != nil {
			t.Fatalf("DeleteCard: %v", err)
		}
		if len(stub.requests) != 0 {
			t.Fatalf("requests = %d, want 0", len(stub.requests))
		}
	})
}

func TestDeleteUser(t *testing.T) {
	t.Run("second endpoint variant", func(t *testing.T) {
		stub, c := newDeviceStub(t, func(r stubRequest) (int, string) {
			if r.Path == pathUserDelete {
				return http.StatusNotFound, `Invalid URL`
			}
			return http.StatusOK, okJSON
		})
		if err := c.DeleteUser(context.Background(), "1001"); err != nil {
			t.Fatalf("DeleteUser: %v", err)
		}
		if len(stub.requests) != 2 || stub.requests[1].Path != pathUserDetailDelete {
			t.Fatalf("requests = %+v", stub.requests)
		}
	})

	t.Run("not found is success", func(t *testing.T) {
		_, c := newDeviceStub(t, func(r stubRequest) (int, string) {
			return http.StatusBadRequest, `{"errorMsg":"employeeNotExist"}`
		})
		if err := c.DeleteUser(context.Background(), "1001"); err != nil {
			t.Fatalf("DeleteUser: %v", err)
		}
	})
}

func TestCaptureFingerprint(t *testing.T) {
	t.Run("returns template and quality", func(t *testing.T) {
		stub, c := newDeviceStub(t, func(r stubRequest) (int, string) {
			return http.StatusOK, `<CaptureFingerPrint><fingerData>QUJDREVG</fingerData><fingerPrintQuality>91</fingerPrintQuality></CaptureFingerPrint>`
		})
		cap, err := c.CaptureFingerprint(context.Background(), 3)
		if err != nil {
			t.Fatalf("CaptureFingerprint: %v", err)
		}
		if cap.Data != "QUJDREVG" {
			t.Fatalf("Data = %q", cap.Data)
		}
		if cap.Quality == nil || *cap.Quality != 91 {
			t.Fatalf("Quality = %v", cap.Quality)
		}
		if !strings.Contains(stub.requests[0].Body, "<fingerNo>3</fingerNo>") {
			t.Fatalf("request body = %s", stub.requests[0].Body)
		}
	})

	t.Run("no template in response", func(t *testing.T) {
		_, c := newDeviceStub(t, func(r stubRequest) (int, string) {
			return http.StatusOK, `<ResponseStatus><statusCode>4</statusCode></ResponseStatus>`
		})
		_, err := c.CaptureFingerprint(context.Background(), 1)
		var op *OpError
		if !errors.As(err, &op) || op.Code != "finger_capture_failed" {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("invalid finger slot", func(t *testing.T) {
		_, c := newDeviceStub(t, func(r stubRequest) (int, string) {
			t.Fatal("unexpected request")
			return 0, ""
		})
		_, err := c.CaptureFingerprint(context.Background(), 11)
		var op *OpError
		if !errors.As(err, &op) || op.Code != "invalid_finger_no" {
			t.Fatalf("err = %v", err)
		}
	})
}

func TestApplyFingerprint(t *testing.T) {
	stub, c := newDeviceStub(t, func(r stubRequest) (int, string) {
		return http.StatusOK, `{"FingerPrintStatus":{"StatusList":[{"cardReaderRecvStatus":1}]}}`
	})
	if err := c.ApplyFingerprint(context.Background(), "1001", 2, "QUJD"); err != nil {
		t.Fatalf("ApplyFingerprint: %v", err)
	}
	got := stub.requests[0]
	if got.Path != pathFingerprintSetUp {
		t.Fatalf("path = %s", got.Path)
	}
	for _, want := range []string{`"fingerPrintID":2`, `"fingerType":"normalFP"`, `"fingerData":"QUJD"`, `"enableCardReader":[1]`} {
		if !strings.Contains(got.Body, want) {
			t.Errorf("body missing %s: %s", want, got.Body)
		}
	}
}

func TestDeleteFingerprint(t *testing.T) {
	t.Run("first variant accepted", func(t *testing.T) {
		stub, c := newDeviceStub(t, func(r stubRequest) (int, string) {
			return http.StatusOK, okJSON
		})
		if err := c.DeleteFingerprint(context.Background(), "1001", 4); err != nil {
			t.Fatalf("DeleteFingerprint: %v", err)
		}
		if len(stub.requests) != 1 {
			t.Fatalf("requests = %d, want 1", len(stub.requests))
		}
		got := stub.requests[0]
		if got.Method != http.MethodPut || got.Path != pathFingerprintDelete {
			t.Fatalf("request = %s %s", got.Method, got.Path)
		}
		if !strings.Contains(got.Body, "FingerPrintDeleteCond") {
			t.Fatalf("body = %s", got.Body)
		}
	})

	t.Run("probes until a variant sticks", func(t *testing.T) {
		accept := 7
		var seen int
		_, c := newDeviceStub(t, func(r stubRequest) (int, string) {
			seen++
			if seen < accept {
				return http.StatusBadRequest, `{"statusCode":4,"errorMsg":"badJsonFormat"}`
			}
			return http.StatusOK, okJSON
		})
		if err := c.DeleteFingerprint(context.Background(), "1001", 4); err != nil {
			t.Fatalf("DeleteFingerprint: %v", err)
		}
		if seen != accept {
			t.Fatalf("requests = %d, want %d", seen, accept)
		}
	})

	t.Run("exhausted json then xml accepted", func(t *testing.T) {
		var sawXML bool
		_, c := newDeviceStub(t, func(r stubRequest) (int, string) {
			if strings.HasPrefix(r.Body, "<") {
				sawXML = true
				return http.StatusOK, `<ResponseStatus><statusCode>1</statusCode></ResponseStatus>`
			}
			return http.StatusBadRequest, `{"statusCode":4,"errorMsg":"badJsonFormat"}`
		})
		if err := c.DeleteFingerprint(context.Background(), "1001", 4); err != nil {
			t.Fatalf("DeleteFingerprint: %v", err)
		}
		if !sawXML {
			t.Fatal("XML fallback never attempted")
		}
	})

	t.Run("not found at the end is success", func(t *testing.T) {
		_, c := newDeviceStub(t, func(r stubRequest) (int, string) {
			return http.StatusBadRequest, `{"errorMsg":"fingerPrintNotExist"}`
		})
		if err := c.DeleteFingerprint(context.Background(), "1001", 4); err != nil {
			t.Fatalf("DeleteFingerprint: %v", err)
		}
	})

	t.Run("invalid finger slot", func(t *testing.T) {
		_, c := newDeviceStub(t, func(r stubRequest) (int, string) {
			t.Fatal("unexpected request")
			return 0, ""
		})
		err := c.DeleteFingerprint(context.Background(), "1001", 0)
		var op *OpError
		if !errors.As(err, &op) || op.Code != "invalid_finger_no" {
			t.Fatalf("err = %v", err)
		}
	})
}

func TestIdentity(t *testing.T) {
	t.Run("xml device info", func(t *testing.T) {
		_, c := newDeviceStub(t, func(r stubRequest) (int, string) {
			switch r.Path {
			case pathDeviceInfo:
				return http.StatusOK, `<DeviceInfo><model>DS-K1T341AM</model><serialNumber>AB1234567</serialNumber><macAddress>a4:14:37:00:11:22</macAddress></DeviceInfo>`
			case pathDeviceTime:
				return http.StatusOK, `<Time><timeZone>CST-8:00:00</timeZone></Time>`
			}
			return http.StatusNotFound, ""
		})
		id, err := c.Identity(context.Background())
		if err != nil {
			t.Fatalf("Identity: %v", err)
		}
		if id.Model != "DS-K1T341AM" || id.Serial != "AB1234567" || id.MAC != "a4:14:37:00:11:22" {
			t.Fatalf("identity = %+v", id)
		}
		if id.Timezone != "CST-8:00:00" {
			t.Fatalf("timezone = %q", id.Timezone)
		}
	})

	t.Run("json device info and failed time endpoint", func(t *testing.T) {
		_, c := newDeviceStub(t, func(r stubRequest) (int, string) {
			if r.Path == pathDeviceInfo {
				return http.StatusOK, `{"DeviceInfo":{"model":"DS-K1T671","serialNumber":"XY999","macAddress":"aa:bb:cc:dd:ee:ff"}}`
			}
			return http.StatusNotFound, "Invalid URL"
		})
		id, err := c.Identity(context.Background())
		if err != nil {
			t.Fatalf("Identity: %v", err)
		}
		if id.Model != "DS-K1T671" || id.Serial != "XY999" {
			t.Fatalf("identity = %+v", id)
		}
		if id.Timezone != "" {
			t.Fatalf("timezone = %q, want empty", id.Timezone)
		}
	})

	t.Run("unusable response", func(t *testing.T) {
		_, c := newDeviceStub(t, func(r stubRequest) (int, string) {
			return http.StatusInternalServerError, "boom"
		})
		_, err := c.Identity(context.Background())
		var op *OpError
		if !errors.As(err, &op) || op.Code != "device_info_failed" {
			t.Fatalf("err = %v", err)
		}
	})
}
