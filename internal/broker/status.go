package broker

import "strings"

// OrderStatus 表示券商侧委托状态。
type OrderStatus uint8

const (
	// StatusUnknown 为无法识别的状态文本哨兵，永远不视为终态。
	StatusUnknown OrderStatus = iota
	StatusNotSubmitted
	StatusPendingForSubmission
	StatusSubmitting
	StatusSubmitted
	StatusPartiallySucceeded
	StatusCompletelySucceeded
	StatusPendingForCancellation
	StatusCancelling
	StatusCancelled
	StatusPartiallySucceededAndThenCancelled
	StatusInvalidOrder
	StatusInvalidCancellation
)

// statusTexts 为券商终端返回的状态文本与状态枚举的固定映射。
var statusTexts = map[string]OrderStatus{
	"未报": StatusNotSubmitted,
	"待报": StatusPendingForSubmission,
	"正报": StatusSubmitting,
	"已报": StatusSubmitted,
	"部成": StatusPartiallySucceeded,
	"已成": StatusCompletelySucceeded,
	"待撤": StatusPendingForCancellation,
	"正撤": StatusCancelling,
	"已撤": StatusCancelled,
	"部撤": StatusPartiallySucceededAndThenCancelled,
	"废单": StatusInvalidOrder,
	"撤废": StatusInvalidCancellation,
}

var statusNames = map[OrderStatus]string{
	StatusUnknown:                            "unknown",
	StatusNotSubmitted:                       "not_submitted",
	StatusPendingForSubmission:               "pending_for_submission",
	StatusSubmitting:                         "submitting",
	StatusSubmitted:                          "submitted",
	StatusPartiallySucceeded:                 "partially_succeeded",
	StatusCompletelySucceeded:                "completely_succeeded",
	StatusPendingForCancellation:             "pending_for_cancellation",
	StatusCancelling:                         "cancelling",
	StatusCancelled:                          "cancelled",
	StatusPartiallySucceededAndThenCancelled: "partially_succeeded_and_then_cancelled",
	StatusInvalidOrder:                       "invalid_order",
	StatusInvalidCancellation:                "invalid_cancellation",
}

// ParseStatus 将状态文本映射为状态枚举，未收录的文本返回 StatusUnknown。
func ParseStatus(text string) OrderStatus {
	if status, ok := statusTexts[strings.TrimSpace(text)]; ok {
		return status
	}
	return StatusUnknown
}

// IsTerminal 判断状态是否为终态。
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case StatusCompletelySucceeded,
		StatusCancelled,
		StatusPartiallySucceededAndThenCancelled,
		StatusInvalidOrder,
		StatusInvalidCancellation:
		return true
	default:
		return false
	}
}

// String 返回状态的英文名称。
func (s OrderStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown"
}
