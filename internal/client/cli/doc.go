// Package cli is the interactive terminal front end of the chat client.
//
// # Flow
//
//  1. Connect to the relay with the configured transport.
//  2. Prompt for a username and a password (read without echo) until the
//     relay accepts them. Rejections are printed and the prompt repeats.
//  3. Generate a fresh key pair and publish its public half.
//  4. Print inbound messages from a background goroutine while the caller's
//     goroutine reads typed lines and sends them. Lines starting with "/" are
//     commands (/whisper <user> <message>, /list); /quit leaves.
//
// User-facing output goes through printlnFn so tests can capture it.
package cli
