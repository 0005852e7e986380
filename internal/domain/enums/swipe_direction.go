package enums

import "strings"

type SwipeDirection string

const (
	SwipeDirectionLeft  SwipeDirection = "left"
	SwipeDirectionRight SwipeDirection = "right"
)

func ParseSwipeDirection(raw string) (SwipeDirection, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(SwipeDirectionLeft):
		return SwipeDirectionLeft, true
	case string(SwipeDirectionRight):
		return SwipeDirectionRight, true
	default:
		return "", false
	}
}
