// Package logx is reminderd's structured logger, a thin layer over zerolog.
//
// A Logger obtained from New follows every Service.Apply, so components can
// keep the value they were built with across config reloads. Records go to
// a console writer, a JSON file, or both; records at or above the alert level
// are also forwarded to an operator chat through a Sender.
package logx
