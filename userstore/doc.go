// Package userstore is the relational user-record store: a reader that
// fetches a user's tier and override columns by id, and a writer that
// patches the override trio. It owns the translation between the three
// independently-nullable override columns on the row and the single
// optional ratelimit.Override the rest of the system works with.
package userstore
