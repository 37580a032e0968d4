/*
Package application is a library for building bverify servers and the
tools that talk to them.

Encoding

This module implements the message encoding and decoding for
client-server communications. It supports JSON and CBOR encodings;
both carry the same protocol.Request and protocol.Response messages.

Logger

This module implements a generic logging system that can be used by any
bverify application/executable.

ServerBase

This module provides an API for implementing the network side of a
bverify server: listening on the configured addresses, decoding requests,
checking which request types each address accepts, and encoding the
responses.

StartingData

This module reads and writes the file holding the ADSes a server
starts with.
*/
package application
