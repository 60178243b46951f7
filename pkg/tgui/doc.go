// Package tgui provides small Telegram UI helpers: inline and reply keyboard
// builders, "{action}_{args}" callback data, an HTML-safe message builder and
// chunking for long listings.
package tgui
