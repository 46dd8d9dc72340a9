/*
Package security implements the mTLS certificate authority used to
authenticate worker sessions and admin CLI clients against the
orchestrator (§4.6), plus the at-rest encryption used to protect the CA's
root private key in storage.

# Certificate Authority

CertAuthority holds a self-signed root certificate (RSA 4096-bit, 10-year
validity) and issues two kinds of leaf certificates signed by it:

  - IssueWorkerCertificate(workerID, dnsNames, ips) — a combined
    client+server cert (ClientAuth + ServerAuth, RSA 2048-bit, 90-day
    validity) for a worker instance dialing back into the session stream.
  - IssueClientCertificate(clientID) — a client-only cert (ClientAuth) for
    an admin CLI session.

Both record the issued certificate in an in-memory cache keyed by subject
ID, read back with GetCachedCert; every issue call still generates a fresh
RSA key. VerifyCertificate checks a peer
certificate's chain against the root.

# At-rest encryption

SetClusterEncryptionKey installs a 32-byte AES-256 key for the process,
normally derived once at bootstrap via DeriveKeyFromClusterID(clusterID)
so every orchestrator replica in a deployment derives the same key without
a side channel. Encrypt/Decrypt wrap AES-256-GCM with a random nonce
prepended to the ciphertext; CertAuthority uses them to encrypt the root
private key before SaveToStore persists it via storage.CAStore, and to
decrypt it on LoadFromStore.

# Certificate lifecycle helpers

certs.go provides file-based persistence for issued certificates
(SaveCertToFile/LoadCertFromFile, SaveCACertToFile/LoadCACertFromFile)
under a per-component directory (GetCertDir, GetCLICertDir), plus
rotation and inspection helpers (CertNeedsRotation, GetCertExpiry,
GetCertInfo, ValidateCertChain) used by worker agents and CLI clients to
decide when to request a new certificate.
*/
package security
