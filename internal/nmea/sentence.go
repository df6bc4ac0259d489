package nmea

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// sentenceType is the talker plus sentence identifier of the
	// authentication sentence.
	sentenceType = "PHTG"

	// sentenceFieldCount is the number of data fields after the sentence
	// type.
	sentenceFieldCount = 6

	// checksumDigits is the number of hex digits after the '*' delimiter.
	checksumDigits = 2
)

// Sentence is one decoded $PHTG authentication report.
//
// Date and Time are kept verbatim as transmitted (DDMMYY / HHMMSS) so
// leading zeros survive a round trip. Empty numeric fields decode as 0.
type Sentence struct {
	// Date is the UTC date of the report, DDMMYY.
	Date string

	// Time is the UTC time of the report, HHMMSS.
	Time string

	// System is the positioning system in use, e.g. "GPS".
	System string

	// Service is the correction service in use, e.g. "RTK".
	Service string

	// AuthResult is the receiver's authentication verdict: 0 when the
	// correction stream failed or has no signature, 1 when it verified.
	// Receivers may report additional vendor-specific codes.
	AuthResult int

	// Warning is the receiver's warning flag, 0 when clear.
	Warning int
}

// ParseSentence decodes one feed line into a Sentence.
//
// Lines from other talkers return ErrNotPHTG so callers can skip them
// without treating the feed as broken. Trailing CR/LF is tolerated. The
// checksum is the XOR of every byte between '$' and '*', transmitted as
// two hex digits; both cases are accepted.
//
// Parameters:
//   - line: One feed line, with or without line terminator
//
// Returns:
//   - Sentence: Decoded fields
//   - error: ErrNotPHTG, ErrSentenceInvalid, or ErrChecksumMismatch
func ParseSentence(line string) (Sentence, error) {
	line = strings.TrimRight(line, "\r\n")

	if len(line) == 0 || line[0] != '$' {
		return Sentence{}, fmt.Errorf("%w: no '$' start delimiter", ErrNotPHTG)
	}
	payload := line[1:]

	// The sentence type runs to the first comma. Anything that is not
	// PHTG is another talker's sentence, not a failure.
	if typeEnd := strings.IndexByte(payload, ','); typeEnd < 0 || payload[:typeEnd] != sentenceType {
		return Sentence{}, fmt.Errorf("%w: %q", ErrNotPHTG, firstField(payload))
	}

	star := strings.LastIndexByte(payload, '*')
	if star < 0 {
		return Sentence{}, fmt.Errorf("%w: missing '*' checksum delimiter", ErrSentenceInvalid)
	}
	data, sum := payload[:star], payload[star+1:]

	if len(sum) != checksumDigits {
		return Sentence{}, fmt.Errorf("%w: checksum %q is not two hex digits", ErrSentenceInvalid, sum)
	}
	wantSum, err := strconv.ParseUint(sum, 16, 8)
	if err != nil {
		return Sentence{}, fmt.Errorf("%w: checksum %q is not hex", ErrSentenceInvalid, sum)
	}
	if got := Checksum(data); got != byte(wantSum) {
		return Sentence{}, fmt.Errorf("%w: computed %02X, sentence carries %02X", ErrChecksumMismatch, got, wantSum)
	}

	fields := strings.Split(data, ",")
	if len(fields) != 1+sentenceFieldCount {
		return Sentence{}, fmt.Errorf("%w: %d fields, want %d", ErrSentenceInvalid, len(fields)-1, sentenceFieldCount)
	}

	authResult, err := numericField(fields[5])
	if err != nil {
		return Sentence{}, fmt.Errorf("%w: auth result: %w", ErrSentenceInvalid, err)
	}
	warning, err := numericField(fields[6])
	if err != nil {
		return Sentence{}, fmt.Errorf("%w: warning: %w", ErrSentenceInvalid, err)
	}

	return Sentence{
		Date:       fields[1],
		Time:       fields[2],
		System:     fields[3],
		Service:    fields[4],
		AuthResult: authResult,
		Warning:    warning,
	}, nil
}

// Encode renders the sentence in wire format, checksum included.
//
// Returns:
//   - string: "$PHTG,...*XX" without line terminator
func (s Sentence) Encode() string {
	data := fmt.Sprintf("%s,%s,%s,%s,%s,%d,%d",
		sentenceType, s.Date, s.Time, s.System, s.Service, s.AuthResult, s.Warning)
	return fmt.Sprintf("$%s*%02X", data, Checksum(data))
}

// Checksum computes the NMEA 0183 checksum: the XOR of every byte
// between the '$' start delimiter and the '*' checksum delimiter.
//
// Parameters:
//   - data: Sentence body without '$' and '*'
//
// Returns:
//   - byte: XOR of all bytes
func Checksum(data string) byte {
	var sum byte
	for i := 0; i < len(data); i++ {
		sum ^= data[i]
	}
	return sum
}

// numericField parses an integer field, treating empty as 0.
func numericField(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%q is not numeric", s)
	}
	return v, nil
}

// firstField returns the sentence type portion of a payload for error
// messages.
func firstField(payload string) string {
	if i := strings.IndexByte(payload, ','); i >= 0 {
		return payload[:i]
	}
	return payload
}
