// Package wire implements the text protocol spoken between chat devices.
//
// Every socket write carries exactly one envelope:
//
//	<category>#$#<ackId>#$#<body>
//
// A CHAT body is an encoded row (sender^&^body^&^timestamp), a GROUP_ROSTER
// body is a comma separated list of peer addresses and a MAC_ADDRESS body is
// a single address. ACK envelopes reference the checksum id of the chat
// message they confirm and carry no body.
package wire
