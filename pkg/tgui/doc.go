// Package tgui provides small Telegram UI helpers:
//   - Inline keyboard builders (including date/time pickers)
//   - Callback data helpers (scope:action:payload)
//   - A simple, safe message builder with sensible defaults
//
// Design goals:
//   - One builder covers text + send options for every bot reply
//   - Safe by default for Telegram ParseMode="HTML" (auto escaping)
package tgui
