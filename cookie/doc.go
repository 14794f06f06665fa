// Package cookie maps session ids to and from the signed session cookie pair.
//
// The id cookie is "<mount>_sid"; its companion "<mount>_sid.sig" holds an
// HS256 JWS over the id so a client cannot forge or swap ids. The package
// never looks at session contents.
package cookie
