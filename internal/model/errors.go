package model

import "errors"

var (
	// ErrInvalidSymbol means the ticker is not listed on the exchange.
	ErrInvalidSymbol = errors.New("invalid symbol")
	// ErrInvalidDate means the date text could not be resolved to a calendar day.
	ErrInvalidDate = errors.New("invalid date")
	// ErrNoDataForDate means the exchange has no daily bar for the requested day.
	ErrNoDataForDate = errors.New("no data for date")
	// ErrUpstreamUnavailable means retries against the exchange were exhausted.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrRateLimited is the per-attempt cause behind most ErrUpstreamUnavailable.
	ErrRateLimited = errors.New("rate limited")
)

// Kind names the taxonomy entry err belongs to, or "Internal".
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrInvalidSymbol):
		return "InvalidSymbol"
	case errors.Is(err, ErrInvalidDate):
		return "InvalidDate"
	case errors.Is(err, ErrNoDataForDate):
		return "NoDataForDate"
	case errors.Is(err, ErrUpstreamUnavailable):
		return "UpstreamUnavailable"
	case errors.Is(err, ErrRateLimited):
		return "RateLimited"
	default:
		return "Internal"
	}
}

// UserMessage is the phrasing shown to end users. Upstream error text is never
// included.
func UserMessage(err error) string {
	switch Kind(err) {
	case "InvalidSymbol":
		return "That coin was not found on the exchange. Please try a different coin."
	case "InvalidDate":
		return "That date could not be understood. Please try a different date, e.g. 2024-01-31."
	case "NoDataForDate":
		return "No price data exists for that date. Please try a different date."
	case "UpstreamUnavailable", "RateLimited":
		return "The price service is busy right now. Please try again shortly."
	default:
		return "Something went wrong while comparing prices."
	}
}

// IsUserError reports whether err is correctable by changing the request.
func IsUserError(err error) bool {
	return errors.Is(err, ErrInvalidSymbol) ||
		errors.Is(err, ErrInvalidDate) ||
		errors.Is(err, ErrNoDataForDate)
}
