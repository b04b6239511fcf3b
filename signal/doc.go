// Package signal encodes suspension requests.
//
// A native suspends the running script by raising amx.ErrSleep and
// returning a signal word, which the machine leaves in PRI:
//
//	 31        24 23                     0
//	+------------+------------------------+
//	|   reason   |        payload         |
//	+------------+------------------------+
//
// The dispatcher decodes the word into a Suspension once and matches on
// Reason from then on. A new suspension reason needs a new tag.
package signal
