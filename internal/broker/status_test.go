package broker

import "testing"

func TestParseStatus_KnownTexts(t *testing.T) {
	cases := map[string]OrderStatus{
		"未报":  StatusNotSubmitted,
		"待报":  StatusPendingForSubmission,
		"正报":  StatusSubmitting,
		"已报":  StatusSubmitted,
		"部成":  StatusPartiallySucceeded,
		"已成":  StatusCompletelySucceeded,
		"待撤":  StatusPendingForCancellation,
		"正撤":  StatusCancelling,
		"已撤":  StatusCancelled,
		"部撤":  StatusPartiallySucceededAndThenCancelled,
		"废单":  StatusInvalidOrder,
		"撤废":  StatusInvalidCancellation,
		" 已成 ": StatusCompletelySucceeded,
	}

	for text, want := range cases {
		if got := ParseStatus(text); got != want {
			t.Errorf("ParseStatus(%q) = %v, want %v", text, got, want)
		}
	}
}

func TestParseStatus_UnknownText(t *testing.T) {
	for _, text := range []string{"", "乱码", "done", "已"} {
		if got := ParseStatus(text); got != StatusUnknown {
			t.Errorf("ParseStatus(%q) = %v, want StatusUnknown", text, got)
		}
	}
}

func TestOrderStatus_IsTerminal(t *testing.T) {
	terminal := []OrderStatus{
		StatusCompletelySucceeded,
		StatusCancelled,
		StatusPartiallySucceededAndThenCancelled,
		StatusInvalidOrder,
		StatusInvalidCancellation,
	}
	for _, status := range terminal {
		if !status.IsTerminal() {
			t.Errorf("expected %v to be terminal", status)
		}
	}

	nonTerminal := []OrderStatus{
		StatusUnknown,
		StatusNotSubmitted,
		StatusPendingForSubmission,
		StatusSubmitting,
		StatusSubmitted,
		StatusPartiallySucceeded,
		StatusPendingForCancellation,
		StatusCancelling,
	}
	for _, status := range nonTerminal {
		if status.IsTerminal() {
			t.Errorf("expected %v to be non-terminal", status)
		}
	}
}
