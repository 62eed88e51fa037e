/*
Package auth implements the HMAC authentication gate.

Every request carries four headers: the caller's service UUID, a timestamp in
epoch milliseconds, an optional algorithm name (HmacSHA256 by default) and a
base64 signature computed over

	serviceUUID ":" timestamp ":" METHOD ":" requestURI ":" body

with the service's shared secret. The gate resolves the identity, recomputes
the signature, compares in constant time, and enforces clock skew and maximum
age. No session state is consulted before it succeeds.
*/
package auth
