// Zenter Bridge - Access Control Edge Bridge
// Copyright 2026 Zenter
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zenterhq/zenter-bridge

package isapi

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// Capture is the result of a fingerprint capture at the device reader.
type Capture struct {
	// Data is the base64 template as the device returned it.
	Data string

	// Quality is the device-reported sample quality, when present.
	Quality *int
}

// CaptureFingerprint triggers a live capture for the given finger slot
// and returns the resulting template. The call blocks until the reader
// sees a finger or the device times out.
func (c *Client) CaptureFingerprint(ctx context.Context, fingerNo int) (*Capture, error) {
	if err := validFingerNo(fingerNo); err != nil {
		return nil, err
	}

	xml := fmt.Sprintf(
		`<CaptureFingerPrintCond version="2.0" xmlns="http://www.isapi.org/ver20/XMLSchema"><fingerNo>%d</fingerNo></CaptureFingerPrintCond>`,
		fingerNo,
	)
	out, err := c.doXML(ctx, http.MethodPost, pathCaptureFingerprint, []byte(xml))
	if err != nil {
		return nil, &OpError{Code: "finger_capture_failed", Detail: trimDetail(err.Error())}
	}

	data := xmlTag(out, "fingerData")
	if data == "" {
		return nil, opError("finger_capture_failed", out)
	}

	cap := &Capture{Data: data}
	if q := xmlTag(out, "fingerPrintQuality"); q != "" {
		if n, err := strconv.Atoi(q); err == nil {
			cap.Quality = &n
		}
	}
	return cap, nil
}

// fingerprintCfg is the FingerPrint/SetUp request body.
type fingerprintCfg struct {
	FingerPrintCfg struct {
		EmployeeNo       string `json:"employeeNo"`
		EnableCardReader []int  `json:"enableCardReader"`
		FingerPrintID    int    `json:"fingerPrintID"`
		FingerType       string `json:"fingerType"`
		FingerData       string `json:"fingerData"`
	} `json:"FingerPrintCfg"`
}

// ApplyFingerprint writes a template into the given finger slot for
// employeeNo.
func (c *Client) ApplyFingerprint(ctx context.Context, employeeNo string, fingerNo int, data string) error {
	employeeNo = strings.TrimSpace(employeeNo)
	if employeeNo == "" {
		return ErrMissingEmployeeNo
	}
	if err := validFingerNo(fingerNo); err != nil {
		return err
	}

	var cfg fingerprintCfg
	cfg.FingerPrintCfg.EmployeeNo = employeeNo
	cfg.FingerPrintCfg.EnableCardReader = []int{1}
	cfg.FingerPrintCfg.FingerPrintID = fingerNo
	cfg.FingerPrintCfg.FingerType = "normalFP"
	cfg.FingerPrintCfg.FingerData = data

	body, _ := json.Marshal(&cfg)
	out, err := c.doJSON(ctx, http.MethodPost, pathFingerprintSetUp, body)
	if err != nil {
		return &OpError{Code: "finger_apply_failed", Detail: trimDetail(err.Error())}
	}
	if !IsOK(out) {
		return opError("finger_apply_failed", out)
	}
	return nil
}

// fingerprintDeleteBodies enumerates the JSON request schemas observed
// across firmware generations for deleting a template. The probe tries
// them in this order and stops at the first recognized OK. Removing or
// reordering entries breaks devices that only accept a later shape.
func fingerprintDeleteBodies(employeeNo string, fingerNo int) [][]byte {
	emp := map[string]any{"employeeNo": employeeNo}
	shapes := []map[string]any{
		// employeeNo as object list + finger list (numbers)
		{"EmployeeNoList": []any{emp}, "fingerPrintIDList": []any{fingerNo}},
		// employeeNo as object list + finger list (objects)
		{"EmployeeNoList": []any{emp}, "fingerPrintIDList": []any{map[string]any{"fingerPrintID": fingerNo}}},
		// employeeNo as object list + finger list (objects, alternate key case)
		{"EmployeeNoList": []any{emp}, "FingerPrintIDList": []any{map[string]any{"fingerPrintID": fingerNo}}},
		// employeeNo as array of strings + finger list
		{"EmployeeNoList": []any{employeeNo}, "fingerPrintIDList": []any{fingerNo}},
		// lowercase employeeNoList variants
		{"employeeNoList": []any{emp}, "fingerPrintIDList": []any{fingerNo}},
		{"employeeNoList": []any{emp}, "fingerPrintIDList": []any{map[string]any{"fingerPrintID": fingerNo}}},
		{"employeeNoList": []any{employeeNo}, "fingerPrintIDList": []any{fingerNo}},
		// single fingerPrintID (no list)
		{"EmployeeNoList": []any{emp}, "fingerPrintID": fingerNo},
		{"employeeNoList": []any{emp}, "fingerPrintID": fingerNo},
		// reader hint (some firmware expects this)
		{"EmployeeNoList": []any{emp}, "fingerPrintIDList": []any{map[string]any{"fingerPrintID": fingerNo, "enableCardReader": []any{1}}}},
	}

	out := make([][]byte, 0, len(shapes))
	for _, shape := range shapes {
		body, _ := json.Marshal(map[string]any{"FingerPrintDeleteCond": shape})
		out = append(out, body)
	}
	return out
}

// fingerprintDeleteXMLBodies enumerates the legacy XML delete shapes.
func fingerprintDeleteXMLBodies(employeeNo string, fingerNo int) [][]byte {
	return [][]byte{
		[]byte(fmt.Sprintf(`<FingerPrintDeleteCond version="2.0" xmlns="http://www.isapi.org/ver20/XMLSchema"><EmployeeNoList><employeeNo>%s</employeeNo></EmployeeNoList><fingerPrintIDList><fingerPrintID>%d</fingerPrintID></fingerPrintIDList></FingerPrintDeleteCond>`, employeeNo, fingerNo)),
		[]byte(fmt.Sprintf(`<FingerPrintDeleteCond version="2.0" xmlns="http://www.isapi.org/ver20/XMLSchema"><employeeNo>%s</employeeNo><fingerPrintID>%d</fingerPrintID></FingerPrintDeleteCond>`, employeeNo, fingerNo)),
		[]byte(fmt.Sprintf(`<FingerPrintDeleteCond><EmployeeNoList><employeeNo>%s</employeeNo></EmployeeNoList><fingerPrintIDList><fingerPrintID>%d</fingerPrintID></fingerPrintIDList></FingerPrintDeleteCond>`, employeeNo, fingerNo)),
	}
}

// DeleteFingerprint removes a stored template. Firmware disagreement on
// the request schema is severe enough that the client probes URL ×
// method × body variants until one yields a recognized OK; a not-found
// refusal at the end is success (the template is gone either way).
func (c *Client) DeleteFingerprint(ctx context.Context, employeeNo string, fingerNo int) error {
	employeeNo = strings.TrimSpace(employeeNo)
	if employeeNo == "" {
		return ErrMissingEmployeeNo
	}
	if err := validFingerNo(fingerNo); err != nil {
		return err
	}

	urls := []string{pathFingerprintDelete, pathFingerprintDelXML}
	methods := []string{http.MethodPut, http.MethodPost, http.MethodDelete}
	bodies := fingerprintDeleteBodies(employeeNo, fingerNo)

	var (
		out     []byte
		lastErr error
	)
probe:
	for _, url := range urls {
		for _, method := range methods {
			for _, body := range bodies {
				if ctx.Err() != nil {
					return &OpError{Code: "finger_delete_failed", Detail: ctx.Err().Error()}
				}
				out, lastErr = c.doJSON(ctx, method, url, body)
				if lastErr == nil && IsOK(out) {
					break probe
				}
			}
		}
	}

	if lastErr != nil || !IsOK(out) {
	xmlProbe:
		for _, url := range urls {
			for _, body := range fingerprintDeleteXMLBodies(employeeNo, fingerNo) {
				out, lastErr = c.doXML(ctx, http.MethodPost, url, body)
				if lastErr == nil && IsOK(out) {
					break xmlProbe
				}
			}
		}
	}

	if lastErr != nil {
		return &OpError{Code: "finger_delete_failed", Detail: trimDetail(lastErr.Error())}
	}
	if !IsOK(out) {
		if IsNotFound(out) {
			return nil
		}
		return opError("finger_delete_failed", out)
	}
	return nil
}

// validFingerNo checks the device's 1..10 finger slot range.
func validFingerNo(n int) error {
	if n < 1 || n > 10 {
		return &OpError{Code: "invalid_finger_no", Detail: strconv.Itoa(n)}
	}
	return nil
}
