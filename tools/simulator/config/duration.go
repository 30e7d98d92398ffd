package config

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// Duration reads either a Go duration string ("12s") or a bare number of
// seconds.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("%w: duration: %w", ErrEncoding, err)
	}

	switch value := raw.(type) {
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("%w: duration: %w", ErrEncoding, err)
		}

		*d = Duration(parsed)
	case float64:
		*d = Duration(value * float64(time.Second))
	default:
		return fmt.Errorf("%w: duration must be a string or number of seconds, got %s", ErrEncoding, b)
	}

	if *d < 0 {
		return fmt.Errorf("%w: negative duration %s", ErrEncoding, time.Duration(*d))
	}

	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d Duration) Value() time.Duration {
	return time.Duration(d)
}
