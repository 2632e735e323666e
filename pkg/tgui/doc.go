// Package tgui contains small helpers for building Telegram HTML messages.
package tgui
