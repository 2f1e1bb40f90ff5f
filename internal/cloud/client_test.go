// Zenter Bridge - Access Control Edge Bridge
// Copyright 2026 Zenter
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zenterhq/zenter-bridge

package cloud

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
)

func newService(t *testing.T, handler func(fn string, payload map[string]any) (int, string)) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("apikey"); got != "anon-key" {
			t.Errorf("apikey header = %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer anon-key" {
			t.Errorf("authorization header = %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		var payload map[string]any
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Errorf("request body not JSON: %v", err)
		}
		fn := strings.TrimPrefix(r.URL.Path, "/functions/v1/")
		code, out := handler(fn, payload)
		w.WriteHeader(code)
		io.WriteString(w, out)
	}))
	t.Cleanup(srv.Close)
	return New(Config{
		BaseURL:   srv.URL,
		APIKey:    "anon-key",
		BridgeID:  "bridge-1",
		DeviceID:  "dev-uuid",
		DeviceKey: "dev-key",
	})
}

func TestSubmitEvent(t *testing.T) {
	raw := json.RawMessage(`{"eventType":"AccessControllerEvent","serialNo":9}`)

	t.Run("accepted", func(t *testing.T) {
		c := newService(t, func(fn string, payload map[string]any) (int, string) {
			if fn != "bridgeIngestEvents" {
				t.Errorf("fn = %s", fn)
			}
			if payload["device_id"] != "dev-uuid" || payload["device_key"] != "dev-key" {
				t.Errorf("credentials missing: %v", payload)
			}
			ev, ok := payload["event"].(map[string]any)
			if !ok || ev["eventType"] != "AccessControllerEvent" {
				t.Errorf("event = %v", payload["event"])
			}
			if payload["bridge_tz_offset_minutes"] != float64(-180) {
				t.Errorf("tz = %v", payload["bridge_tz_offset_minutes"])
			}
			return http.StatusOK, `{"ok":true,"inserted":1,"duplicates":0}`
		})
		got, err := c.SubmitEvent(context.Background(), raw, "2026-08-29T10:00:00Z", -180)
		if err != nil || got != OutcomeAccepted {
			t.Fatalf("SubmitEvent = %v, %v", got, err)
		}
	})

	t.Run("duplicate", func(t *testing.T) {
		c := newService(t, func(fn string, payload map[string]any) (int, string) {
			return http.StatusOK, `{"ok":true,"inserted":0,"duplicates":1}`
		})
		got, err := c.SubmitEvent(context.Background(), raw, "2026-08-29T10:00:00Z", 0)
		if err != nil || got != OutcomeDuplicate {
			t.Fatalf("SubmitEvent = %v, %v", got, err)
		}
	})

	t.Run("ok false body", func(t *testing.T) {
		c := newService(t, func(fn string, payload map[string]any) (int, string) {
			return http.StatusOK, `{"ok":false,"error":"bad_device_key"}`
		})
		_, err := c.SubmitEvent(context.Background(), raw, "", 0)
		var re *RemoteError
		if !errors.As(err, &re) || re.Code != "bad_device_key" {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("non-2xx without body", func(t *testing.T) {
		c := newService(t, func(fn string, payload map[string]any) (int, string) {
			return http.StatusBadGateway, `upstream unavailable`
		})
		_, err := c.SubmitEvent(context.Background(), raw, "", 0)
		var re *RemoteError
		if !errors.As(err, &re) || re.Code != "invalid_json" {
			t.Fatalf("err = %v", err)
		}
	})
}

func TestPullJobs(t *testing.T) {
	c := newService(t, func(fn string, payload map[string]any) (int, string) {
		if fn != "bridgePullEmployeeJobs" {
			t.Errorf("fn = %s", fn)
		}
		if payload["limit"] != float64(5) || payload["bridge_id"] != "bridge-1" {
			t.Errorf("payload = %v", payload)
		}
		return http.StatusOK, `{"ok":true,"jobs":[
			{"id":"j1","action":"upsert","employee_no":"1001","full_name":"Ana","card_no":"C1"},
			{"id":"j2","action":"fingerprint_capture","employee_no":"1002","payload":{"finger_no":3}}
		]}`
	})

	jobs, err := c.PullJobs(context.Background(), 5)
	if err != nil {
		t.Fatalf("PullJobs: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("jobs = %d", len(jobs))
	}
	if jobs[0].Action != "upsert" || jobs[0].CardNo != "C1" {
		t.Fatalf("job 0 = %+v", jobs[0])
	}
	if jobs[1].Payload.FingerNo != 3 {
		t.Fatalf("job 1 = %+v", jobs[1])
	}
}

func TestPullJobsEmpty(t *testing.T) {
	c := newService(t, func(fn string, payload map[string]any) (int, string) {
		return http.StatusOK, `{"ok":true}`
	})
	jobs, err := c.PullJobs(context.Background(), 5)
	if err != nil || len(jobs) != 0 {
		t.Fatalf("PullJobs = %v, %v", jobs, err)
	}
}

func TestCompleteJob(t *testing.T) {
	var got map[string]any
	c := newService(t, func(fn string, payload map[string]any) (int, string) {
		if fn != "bridgeCompleteEmployeeJob" {
			t.Errorf("fn = %s", fn)
		}
		got = payload
		return http.StatusOK, `{"ok":true}`
	})

	err := c.CompleteJob(context.Background(), "j1", "error", "finger_capture_failed", map[string]any{"detail": "timeout"}, 5)
	if err != nil {
		t.Fatalf("CompleteJob: %v", err)
	}
	if got["job_id"] != "j1" || got["status"] != "error" || got["error"] != "finger_capture_failed" {
		t.Fatalf("payload = %v", got)
	}
	if got["retry_in_sec"] != float64(5) {
		t.Fatalf("retry_in_sec = %v", got["retry_in_sec"])
	}

	if err := c.CompleteJob(context.Background(), "j2", "success", "", map[string]any{"ok": true}, 0); err != nil {
		t.Fatalf("CompleteJob: %v", err)
	}
	if got["error"] != nil {
		t.Fatalf("success error field = %v", got["error"])
	}
}

func TestFetchTemplate(t *testing.T) {
	t.Run("present", func(t *testing.T) {
		c := newService(t, func(fn string, payload map[string]any) (int, string) {
			if payload["employee_no"] != "1001" || payload["finger_no"] != float64(2) {
				t.Errorf("payload = %v", payload)
			}
			return http.StatusOK, `{"ok":true,"finger_data":"QUJD"}`
		})
		data, err := c.FetchTemplate(context.Background(), "1001", 2)
		if err != nil || data != "QUJD" {
			t.Fatalf("FetchTemplate = %q, %v", data, err)
		}
	})

	t.Run("missing", func(t *testing.T) {
		c := newService(t, func(fn string, payload map[string]any) (int, string) {
			return http.StatusOK, `{"ok":true}`
		})
		_, err := c.FetchTemplate(context.Background(), "1001", 2)
		if !errors.Is(err, ErrTemplateMissing) {
			t.Fatalf("err = %v", err)
		}
	})
}

func TestEnroll(t *testing.T) {
	t.Run("issues credentials", func(t *testing.T) {
		c := newService(t, func(fn string, payload map[string]any) (int, string) {
			if fn != "bridgeEnrollDevice" {
				t.Errorf("fn = %s", fn)
			}
			if payload["enroll_token"] != "tok-123" || payload["address"] != "10.0.0.5" {
				t.Errorf("payload = %v", payload)
			}
			return http.StatusOK, `{"ok":true,"device_id":"new-uuid","device_key":"new-key"}`
		})
		enr, err := c.Enroll(context.Background(), "tok-123", "Puerta 1", "10.0.0.5")
		if err != nil {
			t.Fatalf("Enroll: %v", err)
		}
		if enr.DeviceID != "new-uuid" || enr.DeviceKey != "new-key" {
			t.Fatalf("enrollment = %+v", enr)
		}
	})

	t.Run("incomplete response", func(t *testing.T) {
		c := newService(t, func(fn string, payload map[string]any) (int, string) {
			return http.StatusOK, `{"ok":true,"device_id":"new-uuid"}`
		})
		_, err := c.Enroll(context.Background(), "tok-123", "", "10.0.0.5")
		var re *RemoteError
		if !errors.As(err, &re) || re.Code != "incomplete_enrollment" {
			t.Fatalf("err = %v", err)
		}
	})
}
