// Package errors provides structured error handling with machine codes.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Order command errors
	CodeOrderTenantIDEmpty       Code = "ORDER_TENANT_ID_EMPTY"
	CodeOrderTenantMismatch      Code = "ORDER_TENANT_MISMATCH"
	CodeOrderRequestIDEmpty      Code = "ORDER_REQUEST_ID_EMPTY"
	CodeOrderBuyerEmailEmpty     Code = "ORDER_BUYER_EMAIL_EMPTY"
	CodeOrderBuyerNameEmpty      Code = "ORDER_BUYER_NAME_EMPTY"
	CodeOrderItemsEmpty          Code = "ORDER_ITEMS_EMPTY"
	CodeOrderItemSKUEmpty        Code = "ORDER_ITEM_SKU_EMPTY"
	CodeOrderItemQtyInvalid      Code = "ORDER_ITEM_QTY_INVALID"
	CodeOrderItemPriceInvalid    Code = "ORDER_ITEM_PRICE_INVALID"
	CodeOrderAttachmentInvalid   Code = "ORDER_ATTACHMENT_INVALID"
	CodeOrderStatusInvalid       Code = "ORDER_STATUS_INVALID"

	// Query errors
	CodeQueryTenantIDEmpty Code = "QUERY_TENANT_ID_EMPTY"
	CodeQueryPageInvalid   Code = "QUERY_PAGE_INVALID"
	CodeQueryLimitInvalid  Code = "QUERY_LIMIT_INVALID"
	CodeQueryRangeInvalid  Code = "QUERY_RANGE_INVALID"

	// Upload errors
	CodeUploadFilenameEmpty    Code = "UPLOAD_FILENAME_EMPTY"
	CodeUploadContentTypeEmpty Code = "UPLOAD_CONTENT_TYPE_EMPTY"
	CodeUploadSizeInvalid      Code = "UPLOAD_SIZE_INVALID"

	// Storage errors
	CodeNotFound           Code = "NOT_FOUND"
	CodeConflict           Code = "CONFLICT"
	CodeStorageUnavailable Code = "STORAGE_UNAVAILABLE"
)

// HTTPStatus maps the code to an HTTP response status.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeStorageUnavailable:
		return http.StatusServiceUnavailable
	case CodeUnknown:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}
