// Package wire implements the framing used between passport-rembg clients and
// the background-removal service.
//
// # Frame Format
//
// A frame is a 4-byte big-endian unsigned length L followed by exactly L bytes
// of payload. L must satisfy 0 < L <= MaxFrameSize; anything else is a protocol
// error and the peer drops the connection without replying.
//
// Each connection carries one request frame (the encoded input image) and one
// response frame (the encoded RGBA cutout), then closes. There is no status
// byte: a connection that closes before a complete response frame arrives is a
// failed exchange.
//
// # Payload Encoding
//
// Responses are always PNG. Requests are PNG when produced by this module's
// client, but the service also accepts JPEG, GIF and WebP payloads.
package wire
