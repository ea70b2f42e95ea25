package app

import "time"

func nextDelay() time.Duration {
	now := time.Now()
	// next five minute mark (0, 5, 10, ...)
	next := time.Date(
		now.Year(),
		now.Month(),
		now.Day(),
		now.Hour(),
		(now.Minute()/5+1)*5,
		0,
		0,
		now.Location(),
	)
	return time.Until(next)
}
