/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON structures for API communication. These decouple the internal
  domain model from the external contract: quantities travel as decimal
  strings, timestamps as RFC3339.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers and the domain services, not in DTOs.
  DTOs are pure data carriers.
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/texfab/stock-engine/adjustment"
	"github.com/texfab/stock-engine/billing"
	"github.com/texfab/stock-engine/jobwork"
	"github.com/texfab/stock-engine/ledger"
)

// =============================================================================
// LEDGER
// =============================================================================

type EntryDTO struct {
	ID           string `json:"id"`
	Timestamp    string `json:"timestamp"`
	Item         string `json:"item"`
	LotShade     string `json:"lot_shade,omitempty"`
	Warehouse    string `json:"warehouse"`
	RefType      string `json:"ref_type"`
	RefNo        string `json:"ref_no,omitempty"`
	InQty        string `json:"in_qty"`
	OutQty       string `json:"out_qty"`
	BalanceAfter string `json:"balance_after"`
	UOM          string `json:"uom,omitempty"`
	Actor        string `json:"actor,omitempty"`
}

func toEntryDTO(e ledger.Entry) EntryDTO {
	return EntryDTO{
		ID:           e.ID,
		Timestamp:    e.Timestamp.Format(time.RFC3339),
		Item:         e.Key.Item,
		LotShade:     e.Key.LotShade,
		Warehouse:    e.Key.Warehouse,
		RefType:      string(e.RefType),
		RefNo:        e.RefNo,
		InQty:        e.InQty.String(),
		OutQty:       e.OutQty.String(),
		BalanceAfter: e.BalanceAfter.String(),
		UOM:          e.UOM,
		Actor:        e.Actor,
	}
}

type BalanceDTO struct {
	Item      string `json:"item"`
	LotShade  string `json:"lot_shade,omitempty"`
	Warehouse string `json:"warehouse"`
	Balance   string `json:"balance"`
	UOM       string `json:"uom,omitempty"`
}

func toBalanceDTO(b ledger.BalanceSnapshot) BalanceDTO {
	return BalanceDTO{
		Item:      b.Key.Item,
		LotShade:  b.Key.LotShade,
		Warehouse: b.Key.Warehouse,
		Balance:   b.Balance.String(),
		UOM:       b.UOM,
	}
}

// =============================================================================
// ADJUSTMENTS
// =============================================================================

// CreateAdjustmentRequest mirrors the upstream payload shape.
type CreateAdjustmentRequest struct {
	Warehouse  string          `json:"warehouse"`
	Item       string          `json:"item"`
	LotShade   string          `json:"lot_shade"`
	UOM        string          `json:"uom"`
	Qty        decimal.Decimal `json:"qty"`
	ReasonCode string          `json:"reason_code,omitempty"`
	Remarks    string          `json:"remarks,omitempty"`
	RefNo      string          `json:"ref_no,omitempty"`
}

type AuditRecordDTO struct {
	Action string `json:"action"`
	Actor  string `json:"actor"`
	At     string `json:"at"`
	Note   string `json:"note,omitempty"`
}

type AdjustmentDTO struct {
	ID         string           `json:"id"`
	Warehouse  string           `json:"warehouse"`
	Item       string           `json:"item"`
	LotShade   string           `json:"lot_shade,omitempty"`
	UOM        string           `json:"uom,omitempty"`
	Qty        string           `json:"qty"`
	ReasonCode string           `json:"reason_code,omitempty"`
	Remarks    string           `json:"remarks,omitempty"`
	RefNo      string           `json:"ref_no,omitempty"`
	Status     string           `json:"status"`
	Audit      []AuditRecordDTO `json:"audit"`
	ApprovedBy string           `json:"approved_by,omitempty"`
	ApprovedAt string           `json:"approved_at,omitempty"`
	LedgerRef  string           `json:"ledger_ref,omitempty"`
	CreatedAt  string           `json:"created_at"`
	UpdatedAt  string           `json:"updated_at"`
}

func toAdjustmentDTO(a *adjustment.Adjustment) AdjustmentDTO {
	dto := AdjustmentDTO{
		ID:         a.ID,
		Warehouse:  a.Warehouse,
		Item:       a.Item,
		LotShade:   a.LotShade,
		UOM:        a.UOM,
		Qty:        a.Qty.String(),
		ReasonCode: a.ReasonCode,
		Remarks:    a.Remarks,
		RefNo:      a.RefNo,
		Status:     string(a.Status),
		LedgerRef:  a.LedgerRef,
		ApprovedBy: a.ApprovedBy,
		CreatedAt:  a.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  a.UpdatedAt.Format(time.RFC3339),
	}
	if a.ApprovedAt != nil {
		dto.ApprovedAt = a.ApprovedAt.Format(time.RFC3339)
	}
	for _, rec := range a.Audit {
		dto.Audit = append(dto.Audit, AuditRecordDTO{
			Action: rec.Action,
			Actor:  rec.Actor,
			At:     rec.At.Format(time.RFC3339),
			Note:   rec.Note,
		})
	}
	return dto
}

// =============================================================================
// JOB WORK
// =============================================================================

type OutwardItemRequest struct {
	Material    string          `json:"material"`
	LotShade    string          `json:"lot_shade,omitempty"`
	QtySent     decimal.Decimal `json:"qty_sent"`
	ApprovedQty decimal.Decimal `json:"approved_qty,omitempty"`
	Rate        decimal.Decimal `json:"rate,omitempty"`
}

type CreateOutwardRequest struct {
	Vendor         string               `json:"vendor"`
	ProcessType    string               `json:"process_type,omitempty"`
	Date           string               `json:"date,omitempty"`
	ExpectedReturn string               `json:"expected_return,omitempty"`
	Items          []OutwardItemRequest `json:"items"`
}

type InwardItemRequest struct {
	Material    string          `json:"material"`
	ReceivedQty decimal.Decimal `json:"received_qty"`
	DamageQty   decimal.Decimal `json:"damage_qty,omitempty"`
}

type SubmitInwardRequest struct {
	Vendor      string              `json:"vendor"`
	ChallanNo   string              `json:"challan_no,omitempty"`
	ProcessType string              `json:"process_type,omitempty"`
	Date        string              `json:"date,omitempty"`
	Items       []InwardItemRequest `json:"items"`
}

type SettleShortageRequest struct {
	Vendor         string          `json:"vendor"`
	ChallanNo      string          `json:"challan_no"`
	Material       string          `json:"material"`
	Qty            decimal.Decimal `json:"qty"`
	SettlementType string          `json:"settlement_type"`
}

type OutwardItemDTO struct {
	Material    string `json:"material"`
	LotShade    string `json:"lot_shade,omitempty"`
	QtySent     string `json:"qty_sent"`
	ApprovedQty string `json:"approved_qty,omitempty"`
	Rate        string `json:"rate,omitempty"`
	Amount      string `json:"amount,omitempty"`
}

type OutwardDTO struct {
	ID             string           `json:"id"`
	ChallanNo      string           `json:"challan_no"`
	Vendor         string           `json:"vendor"`
	ProcessType    string           `json:"process_type,omitempty"`
	Date           string           `json:"date"`
	ExpectedReturn string           `json:"expected_return,omitempty"`
	Items          []OutwardItemDTO `json:"items"`
	Status         string           `json:"status"`
}

func toOutwardDTO(o *jobwork.Outward) OutwardDTO {
	dto := OutwardDTO{
		ID:          o.ID,
		ChallanNo:   o.ChallanNo,
		Vendor:      o.Vendor,
		ProcessType: o.ProcessType,
		Date:        o.Date.Format(time.RFC3339),
		Status:      string(o.Status),
	}
	if !o.ExpectedReturn.IsZero() {
		dto.ExpectedReturn = o.ExpectedReturn.Format(time.RFC3339)
	}
	for _, it := range o.Items {
		item := OutwardItemDTO{
			Material: it.Material,
			LotShade: it.LotShade,
			QtySent:  it.QtySent.String(),
			Rate:     it.Rate.String(),
			Amount:   it.Amount.String(),
		}
		if it.ApprovedQty.IsPositive() {
			item.ApprovedQty = it.ApprovedQty.String()
		}
		dto.Items = append(dto.Items, item)
	}
	return dto
}

type InwardItemDTO struct {
	Material    string `json:"material"`
	ReceivedQty string `json:"received_qty"`
	DamageQty   string `json:"damage_qty"`
}

type InwardDTO struct {
	ID          string          `json:"id"`
	InwardNo    string          `json:"inward_no"`
	Vendor      string          `json:"vendor"`
	ChallanNo   string          `json:"challan_no,omitempty"`
	ProcessType string          `json:"process_type,omitempty"`
	Date        string          `json:"date"`
	Items       []InwardItemDTO `json:"items"`
	Status      string          `json:"status"`
}

func toInwardDTO(in *jobwork.Inward) InwardDTO {
	dto := InwardDTO{
		ID:          in.ID,
		InwardNo:    in.InwardNo,
		Vendor:      in.Vendor,
		ChallanNo:   in.ChallanNo,
		ProcessType: in.ProcessType,
		Date:        in.Date.Format(time.RFC3339),
		Status:      string(in.Status),
	}
	for _, it := range in.Items {
		dto.Items = append(dto.Items, InwardItemDTO{
			Material:    it.Material,
			ReceivedQty: it.ReceivedQty.String(),
			DamageQty:   it.DamageQty.String(),
		})
	}
	return dto
}

type RowDTO struct {
	Vendor            string `json:"vendor"`
	Material          string `json:"material"`
	RefType           string `json:"ref_type"`
	RefNo             string `json:"ref_no"`
	QtySent           string `json:"qty_sent"`
	QtyReceived       string `json:"qty_received"`
	DamageQty         string `json:"damage_qty"`
	BalanceWithVendor string `json:"balance_with_vendor"`
	SettlementType    string `json:"settlement_type,omitempty"`
	At                string `json:"at"`
}

func toRowDTO(r jobwork.LedgerRow) RowDTO {
	return RowDTO{
		Vendor:            r.Vendor,
		Material:          r.Material,
		RefType:           string(r.RefType),
		RefNo:             r.RefNo,
		QtySent:           r.QtySent.String(),
		QtyReceived:       r.QtyReceived.String(),
		DamageQty:         r.DamageQty.String(),
		BalanceWithVendor: r.BalanceWithVendor.String(),
		SettlementType:    string(r.SettlementType),
		At:                r.At.Format(time.RFC3339),
	}
}

type SLADTO struct {
	Vendor    string `json:"vendor"`
	Total     int    `json:"total"`
	OnTime    int    `json:"on_time"`
	OnTimePct int    `json:"on_time_pct"`
}

type AgingDTO struct {
	Days0to7   string `json:"days_0_7"`
	Days8to15  string `json:"days_8_15"`
	Days16to30 string `json:"days_16_30"`
	DaysOver30 string `json:"days_over_30"`
}

// =============================================================================
// BILLING
// =============================================================================

type CreateBillRequest struct {
	Vendor     string            `json:"vendor"`
	ChallanNos []string          `json:"challan_nos"`
	Rates      map[string]string `json:"rates,omitempty"` // material -> rate
}

type BillItemDTO struct {
	Material      string `json:"material"`
	Qty           string `json:"qty"`
	Rate          string `json:"rate"`
	Amount        string `json:"amount"`
	SourceChallan string `json:"source_challan"`
}

type BillDTO struct {
	ID        string        `json:"id"`
	BillNo    string        `json:"bill_no"`
	Vendor    string        `json:"vendor"`
	Items     []BillItemDTO `json:"items"`
	Total     string        `json:"total"`
	Status    string        `json:"status"`
	CreatedAt string        `json:"created_at"`
}

func toBillDTO(b *billing.Bill) BillDTO {
	dto := BillDTO{
		ID:        b.ID,
		BillNo:    b.BillNo,
		Vendor:    b.Vendor,
		Total:     b.Total.String(),
		Status:    string(b.Status),
		CreatedAt: b.CreatedAt.Format(time.RFC3339),
	}
	for _, it := range b.Items {
		dto.Items = append(dto.Items, BillItemDTO{
			Material:      it.Material,
			Qty:           it.Qty.String(),
			Rate:          it.Rate.String(),
			Amount:        it.Amount.String(),
			SourceChallan: it.SourceChallan,
		})
	}
	return dto
}

// ErrorDTO is the uniform error envelope.
type ErrorDTO struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}
