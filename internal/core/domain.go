package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Labour    LineItemType = "labour"
	Service   LineItemType = "service"
	Equipment LineItemType = "equipment"

	Hour Unit = "hr"
	Day  Unit = "day"
	Each Unit = "ea"

	OneTime         CostType = "one-time"
	Monthly         CostType = "monthly"
	MilestoneShared CostType = "milestone"
)

type (
	LineItemType string
	Unit         string
	CostType     string

	Project struct {
		ID        string    `json:"id"`
		Code      string    `json:"code"`
		Name      string    `json:"name"`
		Client    string    `json:"client,omitempty"`
		Currency  string    `json:"currency,omitempty"`
		CreatedAt time.Time `json:"createdAt"`
	}

	Milestone struct {
		ID        string    `json:"id"`
		ProjectID string    `json:"projectId"`
		Code      string    `json:"code"`
		Name      string    `json:"name"`
		StartDate Date      `json:"startDate"`
		EndDate   Date      `json:"endDate"`
		ParentID  string    `json:"parentId,omitempty"` // empty for root milestones
		SortIndex *int      `json:"sortIndex,omitempty"`
		CreatedAt time.Time `json:"createdAt"`
	}

	// CostLineItem is a recurring or one-off cost driver (people, services, equipment).
	CostLineItem struct {
		ID           string              `json:"id"`
		ProjectID    string              `json:"projectId"`
		Type         LineItemType        `json:"type"`
		RoleOrSKU    string              `json:"roleOrSku"`
		Rate         decimal.NullDecimal `json:"rate"`
		Qty          decimal.NullDecimal `json:"qty"`
		Unit         Unit                `json:"unit,omitempty"`
		StartDate    Date                `json:"startDate"`
		EndDate      Date                `json:"endDate"`
		MilestoneIDs []string            `json:"milestoneIds"`
	}

	MaterialCost struct {
		ID           string          `json:"id"`
		ProjectID    string          `json:"projectId"`
		SKU          string          `json:"sku"`
		Description  string          `json:"description,omitempty"`
		UnitPrice    decimal.Decimal `json:"unitPrice"`
		Qty          decimal.Decimal `json:"qty"`
		CostType     CostType        `json:"costType"`
		StartDate    Date            `json:"startDate"`
		EndDate      Date            `json:"endDate"`
		MilestoneIDs []string        `json:"milestoneIds"`
	}

	// PaymentSchedule is an invoice raised against milestones and/or material costs.
	PaymentSchedule struct {
		ID              string          `json:"id"`
		ProjectID       string          `json:"projectId"`
		InvoiceNo       string          `json:"invoiceNo"`
		InvoiceDate     Date            `json:"invoiceDate"`
		Amount          decimal.Decimal `json:"amount"`
		MilestoneIDs    []string        `json:"milestoneIds"`
		MaterialCostIDs []string        `json:"materialCostIds"`
		Notes           string          `json:"notes,omitempty"`
	}

	// ProjectSnapshot is every entity of one project as read at one point in time.
	ProjectSnapshot struct {
		Project    Project           `json:"project"`
		Milestones []Milestone       `json:"milestones"`
		LineItems  []CostLineItem    `json:"lineItems"`
		Materials  []MaterialCost    `json:"materials"`
		Payments   []PaymentSchedule `json:"payments"`
	}
)

// IsValid reports whether t is a known line item type.
func (t LineItemType) IsValid() bool {
	switch t {
	case Labour, Service, Equipment:
		return true
	}
	return false
}

// IsValid reports whether u is a known unit.
func (u Unit) IsValid() bool {
	switch u {
	case Hour, Day, Each:
		return true
	}
	return false
}

// IsValid reports whether c is a known cost type.
func (c CostType) IsValid() bool {
	switch c {
	case OneTime, Monthly, MilestoneShared:
		return true
	}
	return false
}

func (p Project) Validate() error {
	if strings.TrimSpace(p.Code) == "" {
		return ErrEmptyCode
	}
	if strings.TrimSpace(p.Name) == "" {
		return ErrEmptyName
	}
	if len(p.Name) > 200 {
		return fmt.Errorf("%w: too long (max 200 characters)", ErrEmptyName)
	}
	return nil
}

func (m Milestone) Validate() error {
	if strings.TrimSpace(m.Code) == "" {
		return ErrEmptyCode
	}
	if strings.TrimSpace(m.Name) == "" {
		return ErrEmptyName
	}
	if m.ParentID != "" && m.ParentID == m.ID {
		return ErrMilestoneCycle
	}
	return checkRange(m.StartDate, m.EndDate)
}

func (li CostLineItem) Validate() error {
	if !li.Type.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidItemType, li.Type)
	}
	if strings.TrimSpace(li.RoleOrSKU) == "" {
		return ErrEmptyName
	}
	if li.Unit != "" && !li.Unit.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidUnit, li.Unit)
	}
	if li.Rate.Valid && li.Rate.Decimal.IsNegative() {
		return fmt.Errorf("%w: negative rate", ErrInvalidAmount)
	}
	if li.Qty.Valid && li.Qty.Decimal.IsNegative() {
		return fmt.Errorf("%w: negative quantity", ErrInvalidAmount)
	}
	return checkRange(li.StartDate, li.EndDate)
}

func (mc MaterialCost) Validate() error {
	if strings.TrimSpace(mc.SKU) == "" {
		return ErrEmptyCode
	}
	if !mc.CostType.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidCostType, mc.CostType)
	}
	if mc.UnitPrice.IsNegative() {
		return fmt.Errorf("%w: negative unit price", ErrInvalidAmount)
	}
	if mc.Qty.IsNegative() {
		return fmt.Errorf("%w: negative quantity", ErrInvalidAmount)
	}
	return checkRange(mc.StartDate, mc.EndDate)
}

func (ps PaymentSchedule) Validate() error {
	if strings.TrimSpace(ps.InvoiceNo) == "" {
		return ErrEmptyInvoiceNo
	}
	if ps.InvoiceDate.IsEmpty() {
		return fmt.Errorf("%w: invoice date is required", ErrInvalidDate)
	}
	if !ps.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be greater than zero", ErrInvalidAmount)
	}
	return nil
}

// checkRange fails when both dates are set and end precedes start.
func checkRange(start, end Date) error {
	if start.IsEmpty() || end.IsEmpty() {
		return nil
	}
	if end.Before(start.Time) {
		return fmt.Errorf("%w: end %s before start %s", ErrInvalidDateRange, end, start)
	}
	return nil
}
