/*
Package domain contains the core domain models of the sealgate session fabric.

It defines the identities that call the gateway, the keys that address their
container sessions, and the Session tagged union that carries the resumable
state of a signing workflow. This package is kept pure and free of external
dependencies like I/O or persistence, following Hexagonal Architecture principles.

# Key Entities

  - ServiceIdentity: A registered caller with its signing secret (never logged).
  - AuthenticatedIdentity: The secret-free result of authentication; scopes every store call.
  - SessionKey: "<version>_<serviceUUID>_<containerID>", tenant isolation by construction.
  - Session: Tagged union over AttachedContainer, DetachedHashcodeContainer and AsicGenericContainer.
  - Phase: CREATED -> DATA_PREPARED -> (SIGNATURE_PENDING <-> SIGNATURE_ATTACHED)* -> FINALIZED.

Typed access to a session payload always goes through AsVariant, which fails with
a WrongVariant TechnicalError instead of exposing an unchecked cast.
*/
package domain
