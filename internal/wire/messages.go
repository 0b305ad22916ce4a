package wire

import "fmt"

// ErrPrefix is prepended to every wire-level error body.
const ErrPrefix = "ERR: "

// HelpText is the canned HELP response body.
const HelpText = "PING, INFO, USE [db], CREATE [db], " +
	"ADD [ts],[seq],[is_trade],[is_bid],[price],[size];, " +
	"FLUSH, FLUSH ALL, GET ALL, GET [count], CLEAR"

// Canned diagnostic strings, one per command outcome. These match the
// reference server's textual vocabulary exactly so that client-side
// substring checks (e.g. "contains ERR: DB", "starts with ERR: No db named")
// keep working.
const (
	ErrUnableToParseLine = "Unable to parse line"
	ErrNotEnoughItems    = "Not enough items to return"
	ErrUnknownCommand    = "Unknown command."
	ErrBadFormat         = "Bad format."
)

// MsgCreated is the CREATE success body.
func MsgCreated(name string) string { return fmt.Sprintf("Created orderbook `%s`.", name) }

// ErrCannotCreate is the CREATE failure body (book already exists).
func ErrCannotCreate(name string) string {
	return fmt.Sprintf("Unable to create orderbook `%s`.", name)
}

// MsgSwitchedTo is the USE success body.
func MsgSwitchedTo(name string) string { return fmt.Sprintf("SWITCHED TO orderbook `%s`.", name) }

// ErrNoDBNamed is the USE/EXISTS failure body for an unknown book. The wire
// convention distinguishes this from an insert-target failure: callers match
// on the "No db named" substring.
func ErrNoDBNamed(name string) string { return fmt.Sprintf("No db named `%s`", name) }

// MsgSubscribed is the SUBSCRIBE success body.
func MsgSubscribed(name string) string { return fmt.Sprintf("Subscribed to %s", name) }

// ErrDBNotFound is the ADD/INSERT failure body for an unknown target book.
// Callers match on the "DB ... not found" shape, distinct from ErrNoDBNamed.
func ErrDBNotFound(name string) string { return fmt.Sprintf("DB %s not found.", name) }
