// Package events provides the in-process notification bus that feeds live
// dashboard subscribers. Notifications carry a closed set of category tags
// instead of free-form event names, so consumers can switch exhaustively.
package events
