package nmea

import "errors"

// Domain errors for the NMEA feed package.
var (
	// ErrNotPHTG is returned when a line carries some other talker's
	// sentence. Callers treat this as "ignore", not as a failure.
	ErrNotPHTG = errors.New("nmea: not a $PHTG sentence")

	// ErrSentenceInvalid is returned when a $PHTG sentence is structurally
	// malformed: missing checksum delimiter, wrong field count, or a
	// non-numeric value in a numeric field.
	ErrSentenceInvalid = errors.New("nmea: invalid sentence")

	// ErrChecksumMismatch is returned when the transmitted checksum does
	// not match the computed one.
	ErrChecksumMismatch = errors.New("nmea: checksum mismatch")

	// ErrNotConnected is returned when an operation requires a connection
	// but the feed client is not connected.
	ErrNotConnected = errors.New("nmea: not connected to feed")

	// ErrConnectionFailed is returned when the connection to the feed
	// cannot be established.
	ErrConnectionFailed = errors.New("nmea: connection to feed failed")

	// ErrFeedDesync is returned when the stream produces a line longer
	// than any valid sentence, indicating framing is lost.
	ErrFeedDesync = errors.New("nmea: feed stream desynchronized")
)
