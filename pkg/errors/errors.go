package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"
)

// Domain codes are part of the public contract; clients match on them.
const (
	CodeInvalidConfiguration Code = "INVALID_CONFIGURATION"
	CodeProductInactive      Code = "PRODUCT_INACTIVE"
	CodeCartNotFound         Code = "CART_NOT_FOUND"
	CodeCartItemNotFound     Code = "CART_ITEM_NOT_FOUND"
	CodeCartEmpty            Code = "CART_EMPTY"
	CodeInvalidPromoCode     Code = "INVALID_PROMO_CODE"
	CodeMinimumOrderNotMet   Code = "MINIMUM_ORDER_NOT_MET"
	CodePromotionNotFound    Code = "PROMOTION_NOT_FOUND"

	CodeQRCodeNotFound          Code = "QR_CODE_NOT_FOUND"
	CodeQRCodeInactive          Code = "QR_CODE_INACTIVE"
	CodeQRCodeNotAvailable      Code = "QR_CODE_NOT_AVAILABLE"
	CodeQRCodeExpired           Code = "QR_CODE_EXPIRED"
	CodeQRCodeLimitExceeded     Code = "QR_CODE_LIMIT_EXCEEDED"
	CodeQRCodeTotalLimitReached Code = "QR_CODE_TOTAL_LIMIT_EXCEEDED"

	CodeReceiptNotFound        Code = "RECEIPT_NOT_FOUND"
	CodeReceiptAlreadyReviewed Code = "RECEIPT_ALREADY_REVIEWED"

	CodeInsufficientPoints Code = "INSUFFICIENT_POINTS"
)

type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

var metadataByCode = map[Code]Metadata{
	CodeValidation: {
		HTTPStatus:     http.StatusBadRequest,
		PublicMessage:  "validation failed",
		DetailsAllowed: true,
	},
	CodeUnauthorized: {
		HTTPStatus:    http.StatusUnauthorized,
		PublicMessage: "authentication required",
	},
	CodeForbidden: {
		HTTPStatus:    http.StatusForbidden,
		PublicMessage: "access denied",
	},
	CodeNotFound: {
		HTTPStatus:    http.StatusNotFound,
		PublicMessage: "resource not found",
	},
	CodeConflict: {
		HTTPStatus:    http.StatusConflict,
		PublicMessage: "conflict detected",
	},
	CodeStateConflict: {
		HTTPStatus:     http.StatusUnprocessableEntity,
		PublicMessage:  "state transition disallowed",
		DetailsAllowed: true,
	},
	CodeIdempotency: {
		HTTPStatus:     http.StatusConflict,
		PublicMessage:  "idempotency key reused",
		DetailsAllowed: true,
	},
	CodeRateLimit: {
		HTTPStatus:    http.StatusTooManyRequests,
		PublicMessage: "rate limit exceeded",
	},
	CodeInternal: {
		HTTPStatus:    http.StatusInternalServerError,
		Retryable:     true,
		PublicMessage: "internal server error",
	},
	CodeDependency: {
		HTTPStatus:     http.StatusServiceUnavailable,
		Retryable:      true,
		PublicMessage:  "dependency unavailable",
		DetailsAllowed: true,
	},

	CodeInvalidConfiguration: {
		HTTPStatus:     http.StatusBadRequest,
		PublicMessage:  "invalid item configuration",
		DetailsAllowed: true,
	},
	CodeProductInactive: {
		HTTPStatus:     http.StatusUnprocessableEntity,
		PublicMessage:  "product is not available",
		DetailsAllowed: true,
	},
	CodeCartNotFound: {
		HTTPStatus:    http.StatusNotFound,
		PublicMessage: "cart not found",
	},
	CodeCartItemNotFound: {
		HTTPStatus:    http.StatusNotFound,
		PublicMessage: "cart item not found",
	},
	CodeCartEmpty: {
		HTTPStatus:    http.StatusUnprocessableEntity,
		PublicMessage: "cart is empty",
	},
	CodeInvalidPromoCode: {
		HTTPStatus:    http.StatusUnprocessableEntity,
		PublicMessage: "promo code is not valid",
	},
	CodeMinimumOrderNotMet: {
		HTTPStatus:     http.StatusUnprocessableEntity,
		PublicMessage:  "minimum order amount not met",
		DetailsAllowed: true,
	},
	CodePromotionNotFound: {
		HTTPStatus:    http.StatusNotFound,
		PublicMessage: "promotion not found",
	},
	CodeQRCodeNotFound: {
		HTTPStatus:    http.StatusNotFound,
		PublicMessage: "code not found",
	},
	CodeQRCodeInactive: {
		HTTPStatus:    http.StatusUnprocessableEntity,
		PublicMessage: "code is not active",
	},
	CodeQRCodeNotAvailable: {
		HTTPStatus:    http.StatusUnprocessableEntity,
		PublicMessage: "code is not available yet",
	},
	CodeQRCodeExpired: {
		HTTPStatus:    http.StatusUnprocessableEntity,
		PublicMessage: "code has expired",
	},
	CodeQRCodeLimitExceeded: {
		HTTPStatus:    http.StatusConflict,
		PublicMessage: "code already redeemed the maximum number of times",
	},
	CodeQRCodeTotalLimitReached: {
		HTTPStatus:    http.StatusConflict,
		PublicMessage: "code has no redemptions left",
	},
	CodeReceiptNotFound: {
		HTTPStatus:    http.StatusNotFound,
		PublicMessage: "receipt not found",
	},
	CodeReceiptAlreadyReviewed: {
		HTTPStatus:     http.StatusConflict,
		PublicMessage:  "receipt already reviewed",
		DetailsAllowed: true,
	},
	CodeInsufficientPoints: {
		HTTPStatus:     http.StatusUnprocessableEntity,
		PublicMessage:  "insufficient points",
		DetailsAllowed: true,
	},
}

func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

// IsClientCode reports whether the code describes a caller problem whose
// message can be surfaced verbatim.
func IsClientCode(code Code) bool {
	meta, ok := metadataByCode[code]
	if !ok {
		return false
	}
	return meta.HTTPStatus >= 400 && meta.HTTPStatus < 500
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// HasCode reports whether err carries the given typed code anywhere in its chain.
func HasCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.Code() == code
}
