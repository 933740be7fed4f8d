// Package terminal holds the server side of the tap to pay flow: issuing
// connection tokens, resolving the acceptance location and creating
// card-present payment intents. Every operation is a call to the payment
// platform; a nil Gateway means the platform credential is not configured.
package terminal
