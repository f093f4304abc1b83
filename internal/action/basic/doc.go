// Package basic provides the built-in utility actions: token pull and send,
// pipe arithmetic and a balance check.
package basic
