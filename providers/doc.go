// Package providers adapts OAuth2 authorization-code providers (GitHub,
// Google or any custom endpoint set) on top of golang.org/x/oauth2.
//
// A [Provider] builds authorization URLs, exchanges codes for tokens and
// fetches the authenticated user's profile. Tokens and profiles are
// returned as plain maps so they can be stored verbatim on the user record.
package providers
