// Package protocol defines the JSON message types exchanged with the
// recognition server and the client-side message classification rules.
package protocol
