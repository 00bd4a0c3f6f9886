// Package ui provides terminal rendering for tlsecho.
//
// Everything here is "render once" output built with Lipgloss: the startup
// banner, the discovery listing, and the shared styles the interactive client
// uses for its Bubble Tea view.
//
// # Logging Integration
//
// Banners go to stdout while zap logs go to stderr, so setting
// TLSECHO_LOG_LEVEL never interleaves the two on a redirected stdout.
package ui
