package httpx

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type checkoutInput struct {
	Email    string `json:"customer_email" validate:"required,email"`
	OrderID  string `json:"order_id" validate:"required,order_id"`
	BookID   string `json:"book_id" validate:"omitempty,uuid"`
	Currency string `json:"currency" validate:"omitempty,oneof=UAH USD EUR"`
	Amount   int64  `json:"amount" validate:"omitempty,gt=0"`
}

func TestValidateStruct_ValidInput(t *testing.T) {
	in := checkoutInput{
		Email:    "parent@example.com",
		OrderID:  "sub_42:retry.1",
		BookID:   "3f1c3a5e-6e0b-4c6b-9f5e-2b1a7e1d9c11",
		Currency: "UAH",
		Amount:   30000,
	}
	assert.Empty(t, ValidateStruct(in))
}

func TestValidateStruct_UsesJSONFieldNames(t *testing.T) {
	details := ValidateStruct(checkoutInput{})
	require.Len(t, details, 2)

	fields := map[string]string{}
	for _, d := range details {
		fields[d.Field] = d.Message
	}
	assert.Equal(t, "customer_email is required", fields["customer_email"])
	assert.Equal(t, "order_id is required", fields["order_id"])
}

func TestValidateStruct_OrderID(t *testing.T) {
	for _, id := range []string{"sub 1", "order/1", "замовлення", strings.Repeat("a", 129)} {
		details := ValidateStruct(checkoutInput{Email: "a@b.co", OrderID: id})
		require.Len(t, details, 1, id)
		assert.Equal(t, "order_id", details[0].Field)
		assert.Contains(t, details[0].Message, "may only contain")
	}
}

func TestValidateStruct_Messages(t *testing.T) {
	details := ValidateStruct(checkoutInput{
		Email:    "not-an-email",
		OrderID:  "ok",
		BookID:   "nope",
		Currency: "GBP",
	})

	got := map[string]string{}
	for _, d := range details {
		got[d.Field] = d.Message
	}
	assert.Equal(t, "customer_email must be a valid email address", got["customer_email"])
	assert.Equal(t, "book_id must be a valid UUID", got["book_id"])
	assert.Equal(t, "currency must be one of: UAH USD EUR", got["currency"])
}
