// Package internal holds unexported engine plumbing: cryptographically
// strong code and id generation shared by the challenge flows.
package internal
