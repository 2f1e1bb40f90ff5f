// Zenter Bridge - Access Control Edge Bridge
// Copyright 2026 Zenter
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zenterhq/zenter-bridge

package isapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
)

// ErrMissingEmployeeNo is reported when an operation needs an employee
// number the job did not carry.
var ErrMissingEmployeeNo = &OpError{Code: "missing_employee_no"}

// userRecord is the UserInfo/Record request body.
type userRecord struct {
	UserInfo struct {
		EmployeeNo string `json:"employeeNo"`
		Name       string `json:"name"`
		UserType   string `json:"userType"`
		Valid      struct {
			Enable    bool   `json:"enable"`
			BeginTime string `json:"beginTime"`
			EndTime   string `json:"endTime"`
		} `json:"Valid"`
	} `json:"UserInfo"`
}

// EnsureUser creates (or confirms) the user record for employeeNo on
// the device. An already-exists refusal is success: the record is there.
func (c *Client) EnsureUser(ctx context.Context, employeeNo, fullName string) error {
	employeeNo = strings.TrimSpace(employeeNo)
	if employeeNo == "" {
		return ErrMissingEmployeeNo
	}
	if strings.TrimSpace(fullName) == "" {
		fullName = "Empleado"
	}

	var rec userRecord
	rec.UserInfo.EmployeeNo = employeeNo
	rec.UserInfo.Name = strings.TrimSpace(fullName)
	rec.UserInfo.UserType = "normal"
	rec.UserInfo.Valid.Enable = true
	rec.UserInfo.Valid.BeginTime = "2024-01-01T00:00:00"
	rec.UserInfo.Valid.EndTime = "2036-12-31T23:59:59"

	body, _ := json.Marshal(&rec)
	out, err := c.doJSON(ctx, http.MethodPost, pathUserRecord, body)
	if err != nil {
		return &OpError{Code: "user_upsert_failed", Detail: trimDetail(err.Error())}
	}
	if !IsOK(out) {
		if IsAlreadyExists(out) {
			c.log.Debug().Str("employee_no", employeeNo).Msg("user already on device")
			return nil
		}
		return opError("user_upsert_failed", out)
	}
	return nil
}

// cardRecord is the CardInfo/Record request body.
type cardRecord struct {
	CardInfo struct {
		EmployeeNo string `json:"employeeNo"`
		CardNo     string `json:"cardNo"`
		CardType   string `json:"cardType"`
	} `json:"CardInfo"`
}

// EnsureCard creates (or confirms) a card record bound to employeeNo.
// A blank card number is a no-op: not every credential holder carries a
// card. An already-exists refusal is success.
func (c *Client) EnsureCard(ctx context.Context, employeeNo, cardNo string) error {
	cardNo = strings.TrimSpace(cardNo)
	if cardNo == "" {
		return nil
	}
	employeeNo = strings.TrimSpace(employeeNo)
	if employeeNo == "" {
		return ErrMissingEmployeeNo
	}

	var rec cardRecord
	rec.CardInfo.EmployeeNo = employeeNo
	rec.CardInfo.CardNo = cardNo
	rec.CardInfo.CardType = "normalCard"

	body, _ := json.Marshal(&rec)
	out, err := c.doJSON(ctx, http.MethodPost, pathCardRecord, body)
	if err != nil {
		return &OpError{Code: "card_upsert_failed", Detail: trimDetail(err.Error())}
	}
	if !IsOK(out) {
		if IsAlreadyExists(out) {
			c.log.Debug().Str("card_no", cardNo).Msg("card already on device")
			return nil
		}
		return opError("card_upsert_failed", out)
	}
	return nil
}

// cardDeleteCond is the primary CardInfo/Delete request body.
type cardDeleteCond struct {
	CardInfoDelCond struct {
		EmployeeNoList []employeeNoRef `json:"EmployeeNoList,omitempty"`
		CardNoList     []cardNoRef     `json:"CardNoList,omitempty"`
	} `json:"CardInfoDelCond"`
}

type employeeNoRef struct {
	EmployeeNo string `json:"employeeNo"`
}

type cardNoRef struct {
	CardNo string `json:"cardNo"`
}

// cardSetUpDelete is the fallback delete shape: CardInfo/SetUp with the
// deleteCard flag, which older firmware expects.
type cardSetUpDelete struct {
	CardInfo struct {
		EmployeeNo string `json:"employeeNo,omitempty"`
		CardNo     string `json:"cardNo,omitempty"`
		DeleteCard bool   `json:"deleteCard"`
		CardType   string `json:"cardType"`
	} `json:"CardInfo"`
}

// DeleteCard removes card records by employee and/or card number. Blank
// identifiers are a no-op; a not-found refusal is success.
func (c *Client) DeleteCard(ctx context.Context, employeeNo, cardNo string) error {
	employeeNo = strings.TrimSpace(employeeNo)
	cardNo = strings.TrimSpace(cardNo)
	if employeeNo == "" && cardNo == "" {
		return nil
	}

	var cond cardDeleteCond
	if employeeNo != "" {
		cond.CardInfoDelCond.EmployeeNoList = []employeeNoRef{{EmployeeNo: employeeNo}}
	}
	if cardNo != "" {
		cond.CardInfoDelCond.CardNoList = []cardNoRef{{CardNo: cardNo}}
	}

	body, _ := json.Marshal(&cond)
	out, err := c.doJSON(ctx, http.MethodPut, pathCardDelete, body)
	if err == nil && !IsOK(out) && !IsNotFound(out) {
		var fb cardSetUpDelete
		fb.CardInfo.EmployeeNo = employeeNo
		fb.CardInfo.CardNo = cardNo
		fb.CardInfo.DeleteCard = true
		fb.CardInfo.CardType = "normalCard"

		fbBody, _ := json.Marshal(&fb)
		out, err = c.doJSON(ctx, http.MethodPut, pathCardSetUp, fbBody)
	}
	if err != nil {
		return &OpError{Code: "card_delete_failed", Detail: trimDetail(err.Error())}
	}
	if !IsOK(out) {
		if IsNotFound(out) {
			return nil
		}
		return opError("card_delete_failed", out)
	}
	return nil
}

// userDeleteCond is the UserInfo delete request body.
type userDeleteCond struct {
	UserInfoDelCond struct {
		EmployeeNoList []employeeNoRef `json:"EmployeeNoList"`
	} `json:"UserInfoDelCond"`
}

// DeleteUser removes the user record, trying the endpoint variants in
// order. A not-found refusal is success.
func (c *Client) DeleteUser(ctx context.Context, employeeNo string) error {
	employeeNo = strings.TrimSpace(employeeNo)
	if employeeNo == "" {
		return ErrMissingEmployeeNo
	}

	var cond userDeleteCond
	cond.UserInfoDelCond.EmployeeNoList = []employeeNoRef{{EmployeeNo: employeeNo}}
	body, _ := json.Marshal(&cond)

	var (
		out     []byte
		lastErr error
	)
	for _, path := range []string{pathUserDelete, pathUserDetailDelete} {
		out, lastErr = c.doJSON(ctx, http.MethodPut, path, body)
		if lastErr == nil && IsOK(out) {
			return nil
		}
	}
	if lastErr != nil {
		return &OpError{Code: "user_delete_failed", Detail: trimDetail(lastErr.Error())}
	}
	if IsNotFound(out) {
		return nil
	}
	return opError("user_delete_failed", out)
}
