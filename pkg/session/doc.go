/*
Package session implements the container signing workflow on top of a SessionStore.

Each operation loads the stored session, works on a private copy, and writes
the copy back. Nothing survives between requests except what the store holds,
so a workflow started on one replica can be resumed on any other, including
after a restart.

Concurrent transitions on the same container are last-writer-wins unless the
Service is built with WithSerializedKeys or WithLocker.
*/
package session
