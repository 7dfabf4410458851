package contacts

import (
	"fmt"
	"time"
)

// BirthdayWindow computes the inclusive month-day range covering today
// through today+withinDays, year ignored. The bounds are "MMDD" strings
// comparable both in SQL (against to_char(birthday, 'MMDD')) and in Go.
// wraps reports that the range crosses the year boundary, in which case a
// birthday matches when it is >= start OR <= end.
func BirthdayWindow(today time.Time, withinDays int) (start, end string, wraps bool) {
	if withinDays >= 365 {
		return "0101", "1231", false
	}

	last := today.AddDate(0, 0, withinDays)
	start = fmt.Sprintf("%02d%02d", today.Month(), today.Day())
	end = fmt.Sprintf("%02d%02d", last.Month(), last.Day())
	return start, end, end < start
}
