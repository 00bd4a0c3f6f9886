// Package testcert generates throwaway certificate material for tests.
//
// Nothing here is used by the tlsecho binary. Every call writes a fresh CA,
// a server certificate for localhost, a client certificate signed by the same
// CA, and an unrelated private key that does not match the server certificate.
package testcert
