/*
Package ports defines the driven ports (interfaces) for the sealgate session fabric.

These interfaces decouple the authentication gate and the workflow service from
external implementations, allowing them to work with various storage backends,
identity sources, and signing libraries.

# Key Interfaces

  - SessionStore: Persists container sessions under identity-scoped keys.
  - IdentityDirectory: Resolves a declared service identifier to its secret and metadata.
  - Signer: Builds data-to-sign and merges signatures into containers.
  - KeyLocker: Optional cross-replica locking for same-key transitions.
*/
package ports
