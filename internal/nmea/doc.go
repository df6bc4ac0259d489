// Package nmea receives and decodes the proprietary $PHTG authentication
// sentence from a GNSS receiver feed.
//
// The positioning receiver reports, once per second, whether its
// correction stream passed signature verification. The implement relays
// that verdict to the task controller as a proprietary process value, so
// the display can show whether the machine is running on authenticated
// corrections.
//
// # Architecture
//
// The feed client maintains a line-oriented stream connection and hands
// parsed sentences to a consumer:
//
//	┌──────────────┐  NMEA 0183   ┌──────────────┐  Sentence   ┌──────────────┐
//	│     GNSS     │─────────────►│  Feed Client │────────────►│  Auth State  │
//	│   Receiver   │  tcp / unix  │  (this pkg)  │  callback   │   Consumer   │
//	└──────────────┘              └──────────────┘             └──────────────┘
//
// # Key Responsibilities
//
//   - Connect to the receiver feed via TCP or Unix socket
//   - Reassemble and checksum-verify $PHTG sentences
//   - Ignore sentences from other talkers without error
//   - Reconnect automatically when the feed drops or goes silent
//   - Track receive, drop, and parse-failure statistics
//
// # Sentence Format
//
// $PHTG carries six comma-separated fields between the talker ID and the
// checksum delimiter:
//
//	$PHTG,<date>,<time>,<system>,<service>,<authResult>,<warning>*<checksum>
//
// Example:
//
//	s, err := nmea.ParseSentence("$PHTG,121212,123456,GPS,RTK,1,0*07")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(s.AuthResult) // 1
//
// # Thread Safety
//
// FeedClient is safe for concurrent use. Sentence values are immutable
// after parsing.
package nmea
