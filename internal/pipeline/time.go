package pipeline

import "time"

// unixNanoToTime converts the scanner's unix-nanosecond timestamps
// (scanner.Item.ModTime/CTime) to time.Time.
func unixNanoToTime(nanos int64) time.Time {
	return time.Unix(0, nanos).UTC()
}
