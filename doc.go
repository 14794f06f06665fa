// Package sessionflow wires cookie-backed sessions, password login and
// OAuth2 login into a single flow controller.
//
// A [Controller] is assembled once through [Builder.Build] and is safe for
// concurrent use afterwards. Its collaborators are narrow interfaces: a
// [UserDirectory] (see package users), a [PasswordHasher] (package
// password), [OAuth2Provider]s (package providers) and a Redis-backed
// session store (package session).
//
// # Flows
//
// Login, Register, BeginOAuth2, CompleteOAuth2, Logout and
// IncrementCounter each take the session loaded for the current request.
// Expected failures are returned as *[FlowError] values whose Kind maps to
// an HTTP status; anything else is a collaborator failure and should be
// treated as a 500.
//
// # Access control
//
// [RequiresAuthentication] and [RequiresAdmin] are predicates over the
// session. They never touch the user directory: the admin flag is read
// from the user snapshot taken when the session was authenticated.
//
// The HTTP surface lives in package httpapi.
package sessionflow
