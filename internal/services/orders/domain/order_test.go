package domain

import (
	"testing"

	"github.com/commerceloop/orderflow/internal/platform/errors"
)

func validInput() CreateOrderInput {
	return CreateOrderInput{
		TenantID:   "tenant-a",
		RequestID:  "req-1",
		BuyerEmail: "buyer@example.com",
		BuyerName:  "Jordan Buyer",
		Items: []LineItem{
			{SKU: "sku-1", Qty: 2, Price: 10.25},
			{SKU: "sku-2", Qty: 1, Price: 5.00},
		},
	}
}

func TestCreateOrderInputValidate(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*CreateOrderInput)
		wantCode errors.Code
	}{
		{
			name:   "valid",
			mutate: func(in *CreateOrderInput) {},
		},
		{
			name:     "missing tenant",
			mutate:   func(in *CreateOrderInput) { in.TenantID = "  " },
			wantCode: errors.CodeOrderTenantIDEmpty,
		},
		{
			name:     "missing request id",
			mutate:   func(in *CreateOrderInput) { in.RequestID = "" },
			wantCode: errors.CodeOrderRequestIDEmpty,
		},
		{
			name:     "missing buyer email",
			mutate:   func(in *CreateOrderInput) { in.BuyerEmail = "" },
			wantCode: errors.CodeOrderBuyerEmailEmpty,
		},
		{
			name:     "malformed buyer email",
			mutate:   func(in *CreateOrderInput) { in.BuyerEmail = "not-an-address" },
			wantCode: errors.CodeOrderBuyerEmailEmpty,
		},
		{
			name:     "missing buyer name",
			mutate:   func(in *CreateOrderInput) { in.BuyerName = "" },
			wantCode: errors.CodeOrderBuyerNameEmpty,
		},
		{
			name:     "no items",
			mutate:   func(in *CreateOrderInput) { in.Items = nil },
			wantCode: errors.CodeOrderItemsEmpty,
		},
		{
			name:     "item without sku",
			mutate:   func(in *CreateOrderInput) { in.Items[1].SKU = "" },
			wantCode: errors.CodeOrderItemSKUEmpty,
		},
		{
			name:     "zero quantity",
			mutate:   func(in *CreateOrderInput) { in.Items[0].Qty = 0 },
			wantCode: errors.CodeOrderItemQtyInvalid,
		},
		{
			name:     "negative price",
			mutate:   func(in *CreateOrderInput) { in.Items[0].Price = -1 },
			wantCode: errors.CodeOrderItemPriceInvalid,
		},
		{
			name: "attachment missing content type",
			mutate: func(in *CreateOrderInput) {
				in.Attachment = &Attachment{Filename: "invoice.pdf", Size: 100}
			},
			wantCode: errors.CodeOrderAttachmentInvalid,
		},
		{
			name: "attachment too large",
			mutate: func(in *CreateOrderInput) {
				in.Attachment = &Attachment{Filename: "invoice.pdf", ContentType: "application/pdf", Size: 11 << 20}
			},
			wantCode: errors.CodeOrderAttachmentInvalid,
		},
		{
			name: "attachment zero size",
			mutate: func(in *CreateOrderInput) {
				in.Attachment = &Attachment{Filename: "invoice.pdf", ContentType: "application/pdf", Size: 0}
			},
			wantCode: errors.CodeOrderAttachmentInvalid,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			input := validInput()
			tc.mutate(&input)
			input.normalize()
			err := input.validate()
			if tc.wantCode == "" {
				if err != nil {
					t.Fatalf("validate() error = %v, want nil", err)
				}
				return
			}
			if got := errors.CodeOf(err); got != tc.wantCode {
				t.Errorf("validate() code = %q, want %q", got, tc.wantCode)
			}
		})
	}
}

func TestCreateOrderInputTotal(t *testing.T) {
	input := validInput()
	if got := input.total(); got != 25.50 {
		t.Errorf("total() = %v, want 25.50", got)
	}

	input.Items = []LineItem{{SKU: "sku-1", Qty: 3, Price: 0.1}}
	if got := input.total(); got != 0.30 {
		t.Errorf("total() = %v, want 0.30", got)
	}
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		value string
		want  Status
		ok    bool
	}{
		{"PENDING", StatusPending, true},
		{"paid", StatusPaid, true},
		{" Cancelled ", StatusCancelled, true},
		{"SHIPPED", "", false},
		{"", "", false},
	}
	for _, tc := range tests {
		got, err := ParseStatus(tc.value)
		if tc.ok && (err != nil || got != tc.want) {
			t.Errorf("ParseStatus(%q) = %q, %v, want %q", tc.value, got, err, tc.want)
		}
		if !tc.ok && errors.CodeOf(err) != errors.CodeOrderStatusInvalid {
			t.Errorf("ParseStatus(%q) code = %q, want status invalid", tc.value, errors.CodeOf(err))
		}
	}
}
